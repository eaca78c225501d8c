// Package graph is a small stateful workflow engine: named nodes over a
// shared state record, unconditional and conditional edges, and a
// caller-supplied reducer that folds each node's partial update into the
// running state. The engine performs no retries; failure handling is a
// node-local concern.
package graph

import (
	"context"
	"fmt"
	"log"
)

// End is the terminal marker. Routing to End finishes the run.
const End = "__end__"

// NodeFunc executes one stage and returns a partial state update.
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// RouteFunc observes state and picks a branch key.
type RouteFunc[S any] func(state S) string

type conditional[S any] struct {
	route    RouteFunc[S]
	branches map[string]string
}

// Graph is a directed graph of nodes over state S with updates U.
// Build it fully before calling Run; it is not safe to mutate while
// running, but a built graph may serve concurrent runs.
type Graph[S, U any] struct {
	apply        func(S, U) S
	nodes        map[string]NodeFunc[S, U]
	edges        map[string]string
	conditionals map[string]conditional[S]
	entry        string
	checkpointer Checkpointer[S]
}

// New creates a graph with the given reducer. The reducer defines the
// merge policy per field: typically last-writer-wins for scalar fields
// and concatenation for log-like ones.
func New[S, U any](apply func(S, U) S) *Graph[S, U] {
	return &Graph[S, U]{
		apply:        apply,
		nodes:        make(map[string]NodeFunc[S, U]),
		edges:        make(map[string]string),
		conditionals: make(map[string]conditional[S]),
	}
}

func (g *Graph[S, U]) AddNode(name string, fn NodeFunc[S, U]) {
	g.nodes[name] = fn
}

func (g *Graph[S, U]) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdges routes from a node via route's branch key through
// branches. An unknown key at runtime is a configuration error and
// aborts the run.
func (g *Graph[S, U]) AddConditionalEdges(from string, route RouteFunc[S], branches map[string]string) {
	g.conditionals[from] = conditional[S]{route: route, branches: branches}
}

func (g *Graph[S, U]) SetEntryPoint(name string) {
	g.entry = name
}

func (g *Graph[S, U]) SetCheckpointer(cp Checkpointer[S]) {
	g.checkpointer = cp
}

// Run executes the graph from the entry node until End. Each node's
// update is folded into the state before the next edge is evaluated,
// and the merged state is checkpointed under sessionID. On error the
// last merged state is returned alongside it.
func (g *Graph[S, U]) Run(ctx context.Context, initial S, sessionID string) (S, error) {
	state := initial
	if g.entry == "" {
		return state, fmt.Errorf("graph: entry point not set")
	}

	current := g.entry
	for current != End {
		// Cooperative deadline: checked between nodes, never mid-node.
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("graph: run canceled at %q: %w", current, err)
		}

		fn, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("graph: unknown node %q", current)
		}

		update, err := fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph: node %q: %w", current, err)
		}
		state = g.apply(state, update)

		if g.checkpointer != nil {
			if err := g.checkpointer.Put(sessionID, state); err != nil {
				log.Printf("graph: checkpoint for session %s failed: %v", sessionID, err)
			}
		}

		next, err := g.next(current, state)
		if err != nil {
			return state, err
		}
		current = next
	}

	return state, nil
}

func (g *Graph[S, U]) next(current string, state S) (string, error) {
	if c, ok := g.conditionals[current]; ok {
		key := c.route(state)
		next, ok := c.branches[key]
		if !ok {
			return "", fmt.Errorf("graph: node %q routed to unknown branch %q", current, key)
		}
		return next, nil
	}
	if next, ok := g.edges[current]; ok {
		return next, nil
	}
	return "", fmt.Errorf("graph: node %q has no outgoing edge", current)
}
