// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"sort"

	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// NodeKind classifies key-graph nodes.
type NodeKind uint8

const (
	NodeIdentity NodeKind = iota
	NodeDevice
	NodeGuardian
	NodeGroup
)

// PolicyKind classifies node signing policies.
type PolicyKind uint8

const (
	PolicyAll PolicyKind = iota
	PolicyAny
	PolicyThreshold
)

// Policy is a node's signing policy.
type Policy struct {
	Kind PolicyKind
	M    uint16
	N    uint16
}

// EdgeKind classifies key-graph edges.
type EdgeKind uint8

const (
	EdgeContains EdgeKind = iota
	EdgeDelegates
)

// KeyNode is one vertex of the key graph semilattice.
type KeyNode struct {
	ID              ids.ID
	Kind            NodeKind
	Policy          Policy
	EncMessagingKey []byte
}

// KeyEdge connects key-graph nodes.
type KeyEdge struct {
	From ids.ID
	To   ids.ID
	Kind EdgeKind
}

// KeyGraph is a persistent semilattice of nodes and edges, represented
// as maps keyed by node id with per-node outgoing edge lists rather
// than a pointer graph. AddEdge rejects any edge that would close a
// cycle.
type KeyGraph struct {
	nodes map[ids.ID]KeyNode
	edges map[ids.ID][]KeyEdge // from -> outgoing edges
}

// NewKeyGraph returns an empty graph.
func NewKeyGraph() *KeyGraph {
	return &KeyGraph{
		nodes: make(map[ids.ID]KeyNode),
		edges: make(map[ids.ID][]KeyEdge),
	}
}

// Node returns the node, if present.
func (g *KeyGraph) Node(id ids.ID) (KeyNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// PutNode inserts or replaces a node.
func (g *KeyGraph) PutNode(n KeyNode) {
	g.nodes[n.ID] = n
}

// AddEdge inserts an edge after enforcing the structural invariants:
// no cycles, and at most one Contains parent per node.
func (g *KeyGraph) AddEdge(e KeyEdge) error {
	if e.Kind == EdgeContains {
		for _, edges := range g.edges {
			for _, existing := range edges {
				if existing.Kind == EdgeContains && existing.To == e.To && existing.From != e.From {
					return types.NewError(types.ErrProtocolViolation,
						"node %s already contained by %s", e.To, existing.From)
				}
			}
		}
	}
	if g.reaches(e.To, e.From) {
		return types.NewError(types.ErrProtocolViolation, "edge %s -> %s would create a cycle", e.From, e.To)
	}
	g.edges[e.From] = append(g.edges[e.From], e)
	return nil
}

// RemoveEdge deletes an edge if present.
func (g *KeyGraph) RemoveEdge(e KeyEdge) {
	out := g.edges[e.From]
	for i, existing := range out {
		if existing == e {
			g.edges[e.From] = append(out[:i], out[i+1:]...)
			return
		}
	}
}

func (g *KeyGraph) reaches(from, to ids.ID) bool {
	if from == to {
		return true
	}
	seen := map[ids.ID]struct{}{from: {}}
	stack := []ids.ID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.edges[cur] {
			if e.To == to {
				return true
			}
			if _, ok := seen[e.To]; !ok {
				seen[e.To] = struct{}{}
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

// Children returns the Contains-children of a node in byte order.
func (g *KeyGraph) Children(id ids.ID) []ids.ID {
	var children []ids.ID
	for _, e := range g.edges[id] {
		if e.Kind == EdgeContains {
			children = append(children, e.To)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Compare(children[j]) < 0 })
	return children
}

// TransitiveClosure returns every node reachable from root, root
// included.
func (g *KeyGraph) TransitiveClosure(root ids.ID) map[ids.ID]struct{} {
	closure := map[ids.ID]struct{}{root: {}}
	stack := []ids.ID{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.edges[cur] {
			if _, ok := closure[e.To]; !ok {
				closure[e.To] = struct{}{}
				stack = append(stack, e.To)
			}
		}
	}
	return closure
}

// Commitment computes the node's deterministic commitment: BLAKE3 over
// the canonical encoding of (kind, policy, sorted child commitments).
// Leaves commit to their own encoding alone.
func (g *KeyGraph) Commitment(id ids.ID) (types.Hash32, error) {
	return g.commitment(id, make(map[ids.ID]types.Hash32))
}

func (g *KeyGraph) commitment(id ids.ID, memo map[ids.ID]types.Hash32) (types.Hash32, error) {
	if h, ok := memo[id]; ok {
		return h, nil
	}
	node, ok := g.nodes[id]
	if !ok {
		return types.EmptyHash, types.NewError(types.ErrInternal, "commitment of unknown node %s", id)
	}
	children := g.Children(id)
	childCommitments := make([]types.Hash32, 0, len(children))
	for _, child := range children {
		h, err := g.commitment(child, memo)
		if err != nil {
			return types.EmptyHash, err
		}
		childCommitments = append(childCommitments, h)
	}
	p := codec.NewPacker(64 + 32*len(childCommitments))
	p.PackFixed(node.ID.Bytes())
	p.PackByte(byte(node.Kind))
	p.PackByte(byte(node.Policy.Kind))
	p.PackU16(node.Policy.M)
	p.PackU16(node.Policy.N)
	codec.CanonicalHashSet(p, childCommitments)
	h := codec.HashCanonical(p)
	memo[id] = h
	return h, nil
}

// clone deep-copies the graph for snapshot reads.
func (g *KeyGraph) clone() *KeyGraph {
	cp := NewKeyGraph()
	for id, n := range g.nodes {
		cp.nodes[id] = n
	}
	for from, edges := range g.edges {
		out := make([]KeyEdge, len(edges))
		copy(out, edges)
		cp.edges[from] = out
	}
	return cp
}
