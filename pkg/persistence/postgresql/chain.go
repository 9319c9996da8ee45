package postgresql

import (
	"fmt"
	"sort"
	"time"

	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
)

// maxChainDepth bounds every chain walk. Persistence does not enforce
// acyclicity, so traversals must fail on malformed data instead of looping.
const maxChainDepth = 1000

// revisionEdge is the slice of a runbook row needed for chain traversal.
type revisionEdge struct {
	id         string
	previousID *string
	createdAt  time.Time
}

// chainIndex holds the full edge set of one revision chain in memory so the
// forward and backward walks never re-query the database. Well-formed chains
// are linear; the index tolerates branching and reports cycles.
type chainIndex struct {
	nodes    map[string]revisionEdge
	children map[string][]string
}

func newChainIndex(edges []revisionEdge) *chainIndex {
	idx := &chainIndex{
		nodes:    make(map[string]revisionEdge, len(edges)),
		children: make(map[string][]string),
	}

	for _, edge := range edges {
		idx.nodes[edge.id] = edge

		if edge.previousID != nil {
			idx.children[*edge.previousID] = append(idx.children[*edge.previousID], edge.id)
		}
	}

	// Deterministic expansion order: newest child first, id as tiebreaker.
	for parent := range idx.children {
		ids := idx.children[parent]
		sort.Slice(ids, func(i, j int) bool {
			a, b := idx.nodes[ids[i]], idx.nodes[ids[j]]
			if !a.createdAt.Equal(b.createdAt) {
				return a.createdAt.After(b.createdAt)
			}

			return a.id < b.id
		})
	}

	return idx
}

func (idx *chainIndex) contains(id string) bool {
	_, ok := idx.nodes[id]

	return ok
}

// ancestors returns id plus everything reachable by following previous_id, in
// walk order. A previous_id pointing outside the loaded chain ends the walk.
func (idx *chainIndex) ancestors(id string) ([]string, error) {
	visited := map[string]bool{}
	result := make([]string, 0, 4)
	current := id

	for depth := 0; ; depth++ {
		if depth > maxChainDepth {
			return nil, fmt.Errorf("%w: walked past depth %d from %s", persistence.ErrRevisionChainCycle, maxChainDepth, id)
		}

		if visited[current] {
			return nil, fmt.Errorf("%w: revisited %s walking back from %s", persistence.ErrRevisionChainCycle, current, id)
		}

		visited[current] = true
		result = append(result, current)

		edge, ok := idx.nodes[current]
		if !ok || edge.previousID == nil {
			return result, nil
		}

		if _, ok := idx.nodes[*edge.previousID]; !ok {
			// Dangling pointer, e.g. after an out-of-band prune.
			return result, nil
		}

		current = *edge.previousID
	}
}

// descendants returns id plus everything reachable by following "child of"
// edges, breadth-first. Each revision has a single previous_id, so revisiting
// a node implies a cycle.
func (idx *chainIndex) descendants(id string) ([]string, error) {
	visited := map[string]bool{id: true}
	result := []string{id}
	frontier := []string{id}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth > maxChainDepth {
			return nil, fmt.Errorf("%w: walked past depth %d from %s", persistence.ErrRevisionChainCycle, maxChainDepth, id)
		}

		next := make([]string, 0, len(frontier))

		for _, current := range frontier {
			for _, child := range idx.children[current] {
				if visited[child] {
					return nil, fmt.Errorf("%w: revisited %s walking forward from %s", persistence.ErrRevisionChainCycle, child, id)
				}

				visited[child] = true
				result = append(result, child)
				next = append(next, child)
			}
		}

		frontier = next
	}

	return result, nil
}

// leafFrom returns the revision at maximum forward distance from id. On a
// branched chain ties break deterministically: most recent created_at, then
// smallest id.
func (idx *chainIndex) leafFrom(id string) (string, error) {
	best := id
	bestDepth := 0
	visited := map[string]bool{id: true}
	frontier := []string{id}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth > maxChainDepth {
			return "", fmt.Errorf("%w: walked past depth %d from %s", persistence.ErrRevisionChainCycle, maxChainDepth, id)
		}

		next := make([]string, 0, len(frontier))

		for _, current := range frontier {
			for _, child := range idx.children[current] {
				if visited[child] {
					return "", fmt.Errorf("%w: revisited %s walking forward from %s", persistence.ErrRevisionChainCycle, child, id)
				}

				visited[child] = true
				next = append(next, child)

				if idx.better(child, depth+1, best, bestDepth) {
					best, bestDepth = child, depth+1
				}
			}
		}

		frontier = next
	}

	return best, nil
}

// bestLeaf returns the deterministic "latest" revision of the whole chain: the
// leaf at greatest depth from its root, ties broken by created_at then id.
func (idx *chainIndex) bestLeaf() (string, error) {
	var (
		best      string
		bestDepth = -1
	)

	for id := range idx.nodes {
		if len(idx.children[id]) > 0 {
			continue
		}

		back, err := idx.ancestors(id)
		if err != nil {
			return "", err
		}

		depth := len(back) - 1
		if best == "" || idx.better(id, depth, best, bestDepth) {
			best, bestDepth = id, depth
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: no leaf revision found", persistence.ErrRevisionChainCycle)
	}

	return best, nil
}

// better ranks candidate revisions: greater depth wins, then more recent
// created_at, then smaller id.
func (idx *chainIndex) better(candidate string, candidateDepth int, current string, currentDepth int) bool {
	if candidateDepth != currentDepth {
		return candidateDepth > currentDepth
	}

	a, b := idx.nodes[candidate], idx.nodes[current]
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.After(b.createdAt)
	}

	return a.id < b.id
}
