// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package effectstest

import (
	"context"
	"sync"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// DropFunc decides whether a message from -> to is dropped. The
// simulator installs partition and loss behavior here; nil delivers
// everything.
type DropFunc func(from, to ids.DeviceID, msg []byte) bool

// Hub is an in-process message switch connecting deterministic network
// endpoints. Delivery is FIFO per (sender, receiver) pair.
type Hub struct {
	mu        sync.Mutex
	endpoints map[ids.DeviceID]*Endpoint
	drop      DropFunc
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{endpoints: make(map[ids.DeviceID]*Endpoint)}
}

// SetDropFunc installs the fault-injection hook.
func (h *Hub) SetDropFunc(f DropFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop = f
}

// Join attaches a device to the hub and returns its endpoint.
func (h *Hub) Join(device ids.DeviceID) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	ep := &Endpoint{
		hub:    h,
		device: device,
		inbox:  make(chan effects.Inbound, 1024),
		events: make(chan effects.PeerEvent, 64),
	}
	for _, other := range h.endpoints {
		select {
		case other.events <- effects.PeerEvent{Peer: device, Kind: effects.PeerConnected}:
		default:
		}
	}
	h.endpoints[device] = ep
	return ep
}

// Leave detaches a device.
func (h *Hub) Leave(device ids.DeviceID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, device)
	for _, other := range h.endpoints {
		select {
		case other.events <- effects.PeerEvent{Peer: device, Kind: effects.PeerDisconnected}:
		default:
		}
	}
}

func (h *Hub) deliver(from, to ids.DeviceID, msg []byte) error {
	h.mu.Lock()
	target, ok := h.endpoints[to]
	drop := h.drop
	h.mu.Unlock()
	if !ok {
		return types.NewError(types.ErrNetwork, "peer %s not connected", to)
	}
	if drop != nil && drop(from, to, msg) {
		// Dropped messages look like successful sends to the sender,
		// exactly as a lossy link would.
		return nil
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	select {
	case target.inbox <- effects.Inbound{From: from, Bytes: cp}:
		return nil
	default:
		return types.NewError(types.ErrNetwork, "inbox full for peer %s", to)
	}
}

// Endpoint implements effects.Network over the hub.
type Endpoint struct {
	hub    *Hub
	device ids.DeviceID
	inbox  chan effects.Inbound
	events chan effects.PeerEvent
}

func (e *Endpoint) SendToPeer(_ context.Context, peer ids.DeviceID, msg []byte) error {
	return e.hub.deliver(e.device, peer, msg)
}

func (e *Endpoint) Broadcast(ctx context.Context, msg []byte) error {
	for _, peer := range e.ConnectedPeers() {
		if err := e.hub.deliver(e.device, peer, msg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) Receive(ctx context.Context) (effects.Inbound, error) {
	select {
	case in := <-e.inbox:
		return in, nil
	case <-ctx.Done():
		return effects.Inbound{}, types.WrapError(types.ErrTimeout, ctx.Err(), "receive")
	}
}

func (e *Endpoint) ReceiveFrom(ctx context.Context, peer ids.DeviceID) ([]byte, error) {
	for {
		in, err := e.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if in.From == peer {
			return in.Bytes, nil
		}
		// Out-of-order sender; requeue for other readers.
		select {
		case e.inbox <- in:
		default:
		}
	}
}

func (e *Endpoint) ConnectedPeers() []ids.DeviceID {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	peers := make([]ids.DeviceID, 0, len(e.hub.endpoints)-1)
	for id := range e.hub.endpoints {
		if id != e.device {
			peers = append(peers, id)
		}
	}
	ids.SortDeviceIDs(peers)
	return peers
}

func (e *Endpoint) SubscribeToPeerEvents() <-chan effects.PeerEvent {
	return e.events
}

// Pending returns the number of queued inbound messages. Test-only
// introspection for RTT accounting.
func (e *Endpoint) Pending() int {
	return len(e.inbox)
}
