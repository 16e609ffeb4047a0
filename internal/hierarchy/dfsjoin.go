// Package hierarchy provides a memoized post-order join over a supertype
// DAG.
//
// For every node reachable from a query root, the engine computes one fact
// that combines the node's local contribution with the facts of its
// parents. Facts are cached for the lifetime of the engine, so a node that
// is reachable through several paths (diamond inheritance) is joined
// exactly once, and the total work across all queries is O(V+E).
//
// The traversal uses an explicit stack, so pathological hierarchies cannot
// exhaust the goroutine stack. The engine is not safe for concurrent use.
package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCyclicHierarchy is returned when a node is its own ancestor.
	ErrCyclicHierarchy = errors.New("cyclic supertype hierarchy")

	// ErrDuplicateFact is returned when a node's fact would be written twice.
	ErrDuplicateFact = errors.New("fact already computed")
)

// Joiner supplies the graph and the fact algebra to an Engine.
type Joiner[N comparable, F any] interface {
	// Parents returns the immediate parents of n, in a stable order.
	Parents(n N) []N

	// Join combines the facts of n's parents. It is called exactly once per
	// node, after every parent fact exists. parents is in Parents order and
	// must not be retained.
	Join(n N, parents []F) F

	// Local adds n's own contribution to the joined fact.
	Local(n N, joined F) (F, error)
}

// Stats counts engine work.
type Stats struct {
	// Joins is the number of facts synthesized.
	Joins int

	// CacheHits is the number of parent or root lookups answered from the
	// cache.
	CacheHits int
}

// Engine computes and caches facts.
type Engine[N comparable, F any] struct {
	joiner Joiner[N, F]
	cache  map[N]F
	stats  Stats

	// Scratch buffers reused across queries.
	stack   []frame[N]
	onPath  map[N]bool
	scratch []F
}

type frame[N comparable] struct {
	node     N
	expanded bool
}

// New returns an engine with an empty cache.
func New[N comparable, F any](joiner Joiner[N, F]) *Engine[N, F] {
	return &Engine[N, F]{
		joiner: joiner,
		cache:  make(map[N]F),
		onPath: make(map[N]bool),
	}
}

// Lookup returns the cached fact of n without computing it.
func (e *Engine[N, F]) Lookup(n N) (F, bool) {
	f, ok := e.cache[n]
	return f, ok
}

// Len returns the number of cached facts.
func (e *Engine[N, F]) Len() int { return len(e.cache) }

// Stats returns the work counters.
func (e *Engine[N, F]) Stats() Stats { return e.stats }

// Fact returns the fact of root, computing it and the facts of every
// uncached ancestor first.
func (e *Engine[N, F]) Fact(root N) (F, error) {
	if f, ok := e.cache[root]; ok {
		e.stats.CacheHits++
		return f, nil
	}

	e.stack = append(e.stack[:0], frame[N]{node: root})
	defer func() {
		clear(e.onPath)
		e.stack = e.stack[:0]
	}()

	for len(e.stack) > 0 {
		top := &e.stack[len(e.stack)-1]
		if _, done := e.cache[top.node]; done {
			// Pushed more than once before its first completion.
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}

		if !top.expanded {
			top.expanded = true
			node := top.node
			e.onPath[node] = true
			parents := e.joiner.Parents(node)
			// Push in reverse so that parents complete in Parents order.
			for i := len(parents) - 1; i >= 0; i-- {
				p := parents[i]
				if _, ok := e.cache[p]; ok {
					e.stats.CacheHits++
					continue
				}
				if e.onPath[p] {
					return *new(F), e.cycleError(p)
				}
				e.stack = append(e.stack, frame[N]{node: p})
			}
			continue
		}

		// Every parent has completed: synthesize.
		node := top.node
		parents := e.joiner.Parents(node)
		facts := e.scratch[:0]
		for _, p := range parents {
			facts = append(facts, e.cache[p])
		}
		joined := e.joiner.Join(node, facts)
		clear(facts)
		e.scratch = facts[:0]

		fact, err := e.joiner.Local(node, joined)
		if err != nil {
			return *new(F), fmt.Errorf("local contribution of %v: %w", node, err)
		}
		if err := e.store(node, fact); err != nil {
			return *new(F), err
		}
		delete(e.onPath, node)
		e.stack = e.stack[:len(e.stack)-1]
	}
	return e.cache[root], nil
}

// store is the single-assignment write into the cache.
func (e *Engine[N, F]) store(n N, f F) error {
	if _, ok := e.cache[n]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateFact, n)
	}
	e.cache[n] = f
	e.stats.Joins++
	return nil
}

// cycleError reports the expanded path from the first occurrence of n.
func (e *Engine[N, F]) cycleError(n N) error {
	var path []string
	started := false
	for _, fr := range e.stack {
		if !fr.expanded {
			continue
		}
		if fr.node == n {
			started = true
		}
		if started {
			path = append(path, fmt.Sprint(fr.node))
		}
	}
	path = append(path, fmt.Sprint(n))
	return fmt.Errorf("%w: %s", ErrCyclicHierarchy, strings.Join(path, " -> "))
}
