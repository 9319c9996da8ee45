package postgresql

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
)

func strPtr(value string) *string {
	return &value
}

// linearChain builds r0 -> r1 -> r2 with ascending creation times.
func linearChain() *chainIndex {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	return newChainIndex([]revisionEdge{
		{id: "r0", previousID: nil, createdAt: base},
		{id: "r1", previousID: strPtr("r0"), createdAt: base.Add(time.Hour)},
		{id: "r2", previousID: strPtr("r1"), createdAt: base.Add(2 * time.Hour)},
	})
}

func TestChainIndex_Ancestors(t *testing.T) {
	idx := linearChain()

	tests := []struct {
		name string
		from string
		want []string
	}{
		{name: "from leaf walks to root", from: "r2", want: []string{"r2", "r1", "r0"}},
		{name: "from middle", from: "r1", want: []string{"r1", "r0"}},
		{name: "root is its own ancestor set", from: "r0", want: []string{"r0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.ancestors(tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainIndex_Descendants(t *testing.T) {
	idx := linearChain()

	got, err := idx.descendants("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, got)

	got, err = idx.descendants("r0")
	require.NoError(t, err)
	assert.Equal(t, []string{"r0", "r1", "r2"}, got)

	got, err = idx.descendants("r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, got)
}

func TestChainIndex_LeafFrom(t *testing.T) {
	idx := linearChain()

	for _, from := range []string{"r0", "r1", "r2"} {
		leaf, err := idx.leafFrom(from)
		require.NoError(t, err)
		assert.Equal(t, "r2", leaf)
	}
}

func TestChainIndex_BestLeaf_Branching(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// r0 -> r1 -> r2 and a shallower branch r0 -> b1. The deeper leaf wins.
	idx := newChainIndex([]revisionEdge{
		{id: "r0", previousID: nil, createdAt: base},
		{id: "r1", previousID: strPtr("r0"), createdAt: base.Add(time.Hour)},
		{id: "r2", previousID: strPtr("r1"), createdAt: base.Add(2 * time.Hour)},
		{id: "b1", previousID: strPtr("r0"), createdAt: base.Add(3 * time.Hour)},
	})

	leaf, err := idx.bestLeaf()
	require.NoError(t, err)
	assert.Equal(t, "r2", leaf)
}

func TestChainIndex_BestLeaf_EqualDepthBreaksOnCreatedAt(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	idx := newChainIndex([]revisionEdge{
		{id: "r0", previousID: nil, createdAt: base},
		{id: "a1", previousID: strPtr("r0"), createdAt: base.Add(time.Hour)},
		{id: "b1", previousID: strPtr("r0"), createdAt: base.Add(2 * time.Hour)},
	})

	leaf, err := idx.bestLeaf()
	require.NoError(t, err)
	assert.Equal(t, "b1", leaf, "equal depth resolves to the most recently created leaf")
}

func TestChainIndex_CycleDetection(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// r0 -> r1 -> r0: persistence does not enforce acyclicity.
	idx := newChainIndex([]revisionEdge{
		{id: "r0", previousID: strPtr("r1"), createdAt: base},
		{id: "r1", previousID: strPtr("r0"), createdAt: base.Add(time.Hour)},
	})

	_, err := idx.ancestors("r0")
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionChainCycle(err))

	_, err = idx.descendants("r0")
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionChainCycle(err))

	_, err = idx.leafFrom("r0")
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionChainCycle(err))

	_, err = idx.bestLeaf()
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionChainCycle(err))
}

func TestChainIndex_DanglingPreviousEndsWalk(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// r1's ancestor was pruned out of band.
	idx := newChainIndex([]revisionEdge{
		{id: "r1", previousID: strPtr("gone"), createdAt: base},
		{id: "r2", previousID: strPtr("r1"), createdAt: base.Add(time.Hour)},
	})

	got, err := idx.ancestors("r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, got)
}

func TestChainIndex_DepthCap(t *testing.T) {
	edges := make([]revisionEdge, 0, maxChainDepth+2)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	previous := ""
	for i := 0; i <= maxChainDepth+1; i++ {
		edge := revisionEdge{id: idForDepth(i), createdAt: base.Add(time.Duration(i) * time.Second)}
		if previous != "" {
			edge.previousID = strPtr(previous)
		}

		previous = edge.id
		edges = append(edges, edge)
	}

	idx := newChainIndex(edges)

	_, err := idx.ancestors(previous)
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionChainCycle(err))

	_, err = idx.descendants(idForDepth(0))
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionChainCycle(err))
}

func idForDepth(i int) string {
	return fmt.Sprintf("rev-%05d", i)
}
