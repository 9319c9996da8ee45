package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
)

const uniqueViolationCode = "23505"

var validate = validator.New()

// validateStruct runs tag validation before any SQL is issued. Violations wrap
// persistence.ErrValidation so callers can classify them.
func validateStruct(entity any) error {
	err := validate.Struct(entity)
	if err != nil {
		return fmt.Errorf("%w: %s", persistence.ErrValidation, err)
	}

	return nil
}

// marshalDoc serializes an opaque payload. Nil normalizes to an empty document,
// never NULL.
func marshalDoc(doc map[string]any) ([]byte, error) {
	if doc == nil {
		doc = map[string]any{}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	return raw, nil
}

// unmarshalDoc deserializes an opaque payload column, normalizing NULL to an
// empty document.
func unmarshalDoc(raw []byte, dest *map[string]any) error {
	*dest = map[string]any{}

	if len(raw) == 0 {
		return nil
	}

	err := json.Unmarshal(raw, dest)
	if err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return nil
}

// mapUniqueViolation translates the driver's unique-constraint error into the
// persistence sentinel; other errors pass through unchanged.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicateKey, pqErr.Constraint)
	}

	return err
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
