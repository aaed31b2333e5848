// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// ThresholdRequirement summarizes what the root node's policy demands
// against what the subtree currently provides.
type ThresholdRequirement struct {
	Required  uint16
	Available uint16
	Devices   []ids.DeviceID
	Guardians []ids.GuardianID
}

// IdentityView is the materialized view of one identity subtree.
// Materialization is pure and re-runnable; callers may cache but must
// invalidate on epoch advance or any merge touching the subtree's
// transitive closure.
type IdentityView struct {
	Root           KeyNode
	Commitment     types.Hash32
	Devices        []ids.DeviceID
	Guardians      []ids.GuardianID
	RecoveryPolicy *Policy
	Threshold      ThresholdRequirement
}

// GroupView is the materialized view of a group node.
type GroupView struct {
	Group           KeyNode
	Members         []ids.ID
	MessagingPolicy Policy
	HasMessagingKey bool
}

// IdentityViewFor folds the key graph into the identity view for root.
func (j *Journal) IdentityViewFor(root ids.ID) (*IdentityView, error) {
	j.mu.Lock()
	g := j.graphLocked()
	j.mu.Unlock()
	return MaterializeIdentity(g, root)
}

// MaterializeIdentity computes the identity view from a graph snapshot.
func MaterializeIdentity(g *KeyGraph, root ids.ID) (*IdentityView, error) {
	node, ok := g.Node(root)
	if !ok {
		return nil, types.NewError(types.ErrProtocolViolation, "unknown identity root %s", root)
	}
	if node.Kind != NodeIdentity {
		return nil, types.NewError(types.ErrProtocolViolation, "node %s is not an identity", root)
	}
	commitment, err := g.Commitment(root)
	if err != nil {
		return nil, err
	}

	view := &IdentityView{Root: node, Commitment: commitment}
	for id := range g.TransitiveClosure(root) {
		child, ok := g.Node(id)
		if !ok || id == root {
			continue
		}
		switch child.Kind {
		case NodeDevice:
			view.Devices = append(view.Devices, ids.DeviceID(id))
		case NodeGuardian:
			view.Guardians = append(view.Guardians, ids.GuardianID(id))
		}
	}
	ids.SortDeviceIDs(view.Devices)
	ids.SortGuardianIDs(view.Guardians)

	if node.Policy.Kind == PolicyThreshold {
		p := node.Policy
		view.RecoveryPolicy = &p
	}
	view.Threshold = thresholdRequirement(node.Policy, view.Devices, view.Guardians)
	return view, nil
}

func thresholdRequirement(p Policy, devices []ids.DeviceID, guardians []ids.GuardianID) ThresholdRequirement {
	available := uint16(len(devices) + len(guardians))
	req := ThresholdRequirement{
		Available: available,
		Devices:   devices,
		Guardians: guardians,
	}
	switch p.Kind {
	case PolicyAll:
		req.Required = available
	case PolicyAny:
		if available > 0 {
			req.Required = 1
		}
	case PolicyThreshold:
		req.Required = p.M
	}
	return req
}

// GroupViewFor folds the key graph into the group view for a group node.
func (j *Journal) GroupViewFor(group ids.ID) (*GroupView, error) {
	j.mu.Lock()
	g := j.graphLocked()
	j.mu.Unlock()
	return MaterializeGroup(g, group)
}

// MaterializeGroup computes the group view from a graph snapshot.
func MaterializeGroup(g *KeyGraph, group ids.ID) (*GroupView, error) {
	node, ok := g.Node(group)
	if !ok {
		return nil, types.NewError(types.ErrProtocolViolation, "unknown group %s", group)
	}
	if node.Kind != NodeGroup {
		return nil, types.NewError(types.ErrProtocolViolation, "node %s is not a group", group)
	}
	return &GroupView{
		Group:           node,
		Members:         g.Children(group),
		MessagingPolicy: node.Policy,
		HasMessagingKey: len(node.EncMessagingKey) > 0,
	}, nil
}

// IsMember reports whether candidate appears in root's transitive
// closure, which follows edges of every kind.
func (j *Journal) IsMember(root, candidate ids.ID) bool {
	j.mu.Lock()
	g := j.graphLocked()
	j.mu.Unlock()
	_, ok := g.TransitiveClosure(root)[candidate]
	return ok && root != candidate
}

// Members returns the direct members of a node in deterministic order.
func (j *Journal) Members(root ids.ID) []ids.ID {
	j.mu.Lock()
	g := j.graphLocked()
	j.mu.Unlock()
	return g.Children(root)
}
