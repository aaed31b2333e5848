// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"sort"
	"sync"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
	"github.com/hxrts/aura/utils/set"
)

// Stats summarizes journal contents.
type Stats struct {
	Facts          uint64
	TreeOps        uint64
	PendingIntents uint64
	Commits        uint64
	Equivocations  uint64
}

// Journal owns one authority's fact map and key graph. Single writer
// per device; reads snapshot under the lock.
type Journal struct {
	mu sync.RWMutex

	authority ids.AuthorityID
	log       log.Logger
	metrics   *journalMetrics

	// facts is the content-addressed map; winners indexes the current
	// LWW winner per node key; setFacts keeps every set-like fact.
	facts    map[types.Hash32]*Fact
	winners  map[ids.ID]types.Hash32
	setFacts map[ids.ID][]types.Hash32

	// graph is rebuilt lazily from winning facts; graphDirty marks it
	// stale after any merge that touches graph-shaping facts.
	graph      *KeyGraph
	graphDirty bool

	epoch   types.Epoch
	treeOps map[types.Epoch][][]byte
	intents map[ids.ID]*Intent

	caps set.Set[string]

	commits       map[types.Hash32]*CommitFact // prestate hash -> accepted commit
	commitsByID   map[types.Hash32]*CommitFact // consensus id -> accepted commit
	equivocations []Equivocation
	attestedOps   map[ids.ID]*Fact
	opLog         []types.Hash32
}

// New creates an empty journal for one authority.
func New(authority ids.AuthorityID, logger log.Logger, metrics *journalMetrics) *Journal {
	if metrics == nil {
		metrics = newNoopMetrics()
	}
	return &Journal{
		authority:   authority,
		log:         logger,
		metrics:     metrics,
		facts:       make(map[types.Hash32]*Fact),
		winners:     make(map[ids.ID]types.Hash32),
		setFacts:    make(map[ids.ID][]types.Hash32),
		graph:       NewKeyGraph(),
		treeOps:     make(map[types.Epoch][][]byte),
		intents:     make(map[ids.ID]*Intent),
		caps:        set.NewSet[string](8),
		commits:     make(map[types.Hash32]*CommitFact),
		commitsByID: make(map[types.Hash32]*CommitFact),
		attestedOps: make(map[ids.ID]*Fact),
	}
}

// Authority returns the owning authority.
func (j *Journal) Authority() ids.AuthorityID {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.authority
}

// Epoch returns the journal's current epoch.
func (j *Journal) Epoch() types.Epoch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.epoch
}

// AdvanceEpoch moves the epoch forward. View caches must be treated as
// invalid by callers once this returns.
func (j *Journal) AdvanceEpoch(e types.Epoch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e > j.epoch {
		j.epoch = e
		j.graphDirty = true
	}
}

// ReadFacts returns every fact, sorted by content hash.
func (j *Journal) ReadFacts() []*Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Fact, 0, len(j.facts))
	hashes := make([]types.Hash32, 0, len(j.facts))
	for h := range j.facts {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, k int) bool { return hashes[i].Compare(hashes[k]) < 0 })
	for _, h := range hashes {
		out = append(out, j.facts[h])
	}
	return out
}

// Fact returns a fact by content hash.
func (j *Journal) Fact(h types.Hash32) (*Fact, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	f, ok := j.facts[h]
	return f, ok
}

// MergeFacts merges a delta of facts. Duplicates are idempotent;
// conflicts on the same node key resolve by (epoch desc, timestamp
// desc, author desc) unless the kind is set-like, in which case both
// survive.
func (j *Journal) MergeFacts(delta []*Fact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, f := range delta {
		j.mergeFactLocked(f)
	}
}

func (j *Journal) mergeFactLocked(f *Fact) {
	h := f.ContentHash()
	if _, ok := j.facts[h]; ok {
		return
	}
	j.facts[h] = f
	j.opLog = append(j.opLog, h)
	j.metrics.facts.Inc()

	if f.Kind.IsSetLike() {
		j.setFacts[f.ID] = append(j.setFacts[f.ID], h)
		j.graphDirty = true
		return
	}
	current, ok := j.winners[f.ID]
	if !ok || supersedes(f, j.facts[current]) {
		j.winners[f.ID] = h
		j.graphDirty = true
	}
}

// Append merges a locally-authored fact and returns its content hash.
func (j *Journal) Append(f *Fact) types.Hash32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.mergeFactLocked(f)
	return f.ContentHash()
}

// MergeJournalState merges a complete remote journal state.
func (j *Journal) MergeJournalState(other *Journal) {
	for _, f := range other.ReadFacts() {
		j.MergeFacts([]*Fact{f})
	}
	for _, cf := range other.Commits() {
		_ = j.AcceptCommit(cf)
	}
}

// StateHash digests the full fact set; any two journals that observed
// the same facts produce the same hash regardless of merge order.
func (j *Journal) StateHash() types.Hash32 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	hashes := make([]types.Hash32, 0, len(j.facts))
	for h := range j.facts {
		hashes = append(hashes, h)
	}
	p := codec.NewPacker(32 * len(hashes))
	codec.CanonicalHashSet(p, hashes)
	return codec.HashCanonical(p)
}

// HeadHash is the journal head used in prestates: the state hash.
func (j *Journal) HeadHash() types.Hash32 {
	return j.StateHash()
}

// ReadCaps returns the current capability strings, sorted.
func (j *Journal) ReadCaps() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	caps := j.caps.List()
	sort.Strings(caps)
	return caps
}

// GrantCap records a capability string.
func (j *Journal) GrantCap(cap string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caps.Add(cap)
}

// RefineCaps drops every capability the constraint rejects. Refinement
// only ever narrows.
func (j *Journal) RefineCaps(constraint func(string) bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range j.caps.List() {
		if !constraint(c) {
			j.caps.Remove(c)
		}
	}
}

// AppendTreeOp records a raw tree operation for the current epoch.
func (j *Journal) AppendTreeOp(op []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := make([]byte, len(op))
	copy(cp, op)
	j.treeOps[j.epoch] = append(j.treeOps[j.epoch], cp)
}

// ListTreeOps returns the tree operations recorded at an epoch.
func (j *Journal) ListTreeOps(epoch types.Epoch) [][]byte {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.treeOps[epoch]
}

// SubmitIntent stores a pending intent keyed by its id.
func (j *Journal) SubmitIntent(in *Intent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.intents[in.ID] = in
	j.metrics.pendingIntents.Inc()
}

// Intent returns an intent by id.
func (j *Journal) Intent(id ids.ID) (*Intent, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	in, ok := j.intents[id]
	return in, ok
}

// ListIntents returns intents in id order.
func (j *Journal) ListIntents() []*Intent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Intent, 0, len(j.intents))
	for _, in := range j.intents {
		out = append(out, in)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID.Compare(out[k].ID) < 0 })
	return out
}

// TombstoneIntent marks an intent tombstoned.
func (j *Journal) TombstoneIntent(id ids.ID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if in, ok := j.intents[id]; ok && in.State == IntentPending {
		in.State = IntentTombstoned
		j.metrics.pendingIntents.Dec()
	}
}

// PruneStaleIntents removes intents whose prestate root no longer
// matches the current identity commitment.
func (j *Journal) PruneStaleIntents(currentRoot types.Hash32) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	pruned := 0
	for id, in := range j.intents {
		if in.State != IntentPending {
			delete(j.intents, id)
			continue
		}
		if in.PrestateRoot != currentRoot {
			in.State = IntentTombstoned
			delete(j.intents, id)
			j.metrics.pendingIntents.Dec()
			pruned++
		}
	}
	return pruned
}

// ListCapabilitiesInOp extracts the capability strings an intent
// requires.
func (j *Journal) ListCapabilitiesInOp(id ids.ID) []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if in, ok := j.intents[id]; ok {
		return in.Capabilities
	}
	return nil
}

// AcceptCommit accepts a CommitFact after verification, transitioning
// the matching intent and enforcing the equivocation tie-break: for two
// valid commits on the same prestate, the lexicographically smaller
// operation hash wins and the other is recorded.
func (j *Journal) AcceptCommit(cf *CommitFact) error {
	if err := cf.Verify(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if existing, ok := j.commits[cf.PrestateHash]; ok {
		if existing.OperationHash == cf.OperationHash {
			return nil
		}
		if cf.OperationHash.Compare(existing.OperationHash) < 0 {
			j.recordEquivocationLocked(cf.PrestateHash, cf.OperationHash, existing.OperationHash, existing)
			j.commits[cf.PrestateHash] = cf
			j.commitsByID[cf.ConsensusID] = cf
		} else {
			j.recordEquivocationLocked(cf.PrestateHash, existing.OperationHash, cf.OperationHash, cf)
		}
		return nil
	}

	j.commits[cf.PrestateHash] = cf
	j.commitsByID[cf.ConsensusID] = cf
	j.metrics.commits.Inc()

	for _, in := range j.intents {
		if in.State == IntentPending && in.OperationHash == cf.OperationHash {
			in.State = IntentCommitted
			j.metrics.pendingIntents.Dec()
		}
	}
	return nil
}

func (j *Journal) recordEquivocationLocked(prestate, accepted, rejected types.Hash32, commit *CommitFact) {
	j.equivocations = append(j.equivocations, Equivocation{
		PrestateHash: prestate,
		AcceptedOp:   accepted,
		RejectedOp:   rejected,
		Commit:       commit,
	})
	j.metrics.equivocations.Inc()
	j.log.Warn("equivocating commit recorded",
		zap.Stringer("prestate", prestate),
		zap.Stringer("accepted", accepted),
		zap.Stringer("rejected", rejected),
	)
}

// Commits returns the accepted commits.
func (j *Journal) Commits() []*CommitFact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*CommitFact, 0, len(j.commits))
	for _, cf := range j.commits {
		out = append(out, cf)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].ConsensusID.Compare(out[k].ConsensusID) < 0
	})
	return out
}

// CommitByID returns the accepted commit for a consensus id.
func (j *Journal) CommitByID(id types.Hash32) (*CommitFact, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	cf, ok := j.commitsByID[id]
	return cf, ok
}

// Equivocations returns the equivocation log.
func (j *Journal) Equivocations() []Equivocation {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Equivocation, len(j.equivocations))
	copy(out, j.equivocations)
	return out
}

// PutAttestedOp stores an attested operation fact.
func (j *Journal) PutAttestedOp(f *Fact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attestedOps[f.ID] = f
	j.mergeFactLocked(f)
}

// AttestedOp returns an attested op by id.
func (j *Journal) AttestedOp(id ids.ID) (*Fact, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	f, ok := j.attestedOps[id]
	return f, ok
}

// RemoveAttestedOp deletes an attested op.
func (j *Journal) RemoveAttestedOp(id ids.ID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.attestedOps, id)
}

// OpLog returns the hashes of facts in local arrival order.
func (j *Journal) OpLog() []types.Hash32 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]types.Hash32, len(j.opLog))
	copy(out, j.opLog)
	return out
}

// MergeOpLog returns the remote op-log hashes the local journal has no
// fact for; it does not change the journal.
func (j *Journal) MergeOpLog(remote []types.Hash32) []types.Hash32 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var missing []types.Hash32
	for _, h := range remote {
		if _, ok := j.facts[h]; !ok {
			missing = append(missing, h)
		}
	}
	return missing
}

// Stats reports journal counters.
func (j *Journal) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	pending := uint64(0)
	for _, in := range j.intents {
		if in.State == IntentPending {
			pending++
		}
	}
	ops := uint64(0)
	for _, epochOps := range j.treeOps {
		ops += uint64(len(epochOps))
	}
	return Stats{
		Facts:          uint64(len(j.facts)),
		TreeOps:        ops,
		PendingIntents: pending,
		Commits:        uint64(len(j.commits)),
		Equivocations:  uint64(len(j.equivocations)),
	}
}

// graphLocked rebuilds the key graph from winning facts if stale.
// Rebuilding folds facts in content-hash order, so any two journals
// with the same fact set produce identical graphs.
func (j *Journal) graphLocked() *KeyGraph {
	if !j.graphDirty {
		return j.graph
	}
	g := NewKeyGraph()

	nodeHashes := make([]types.Hash32, 0, len(j.winners))
	for _, h := range j.winners {
		nodeHashes = append(nodeHashes, h)
	}
	sort.Slice(nodeHashes, func(i, k int) bool { return nodeHashes[i].Compare(nodeHashes[k]) < 0 })
	var edgeFacts []*Fact
	for _, h := range nodeHashes {
		f := j.facts[h]
		switch f.Kind {
		case FactNodeSet:
			if node, err := DecodeNodeFact(f.Value); err == nil {
				g.PutNode(node)
			}
		case FactEdgeSet:
			edgeFacts = append(edgeFacts, f)
		}
	}
	for _, hashes := range j.setFacts {
		for _, h := range hashes {
			f := j.facts[h]
			if f.Kind == FactMemberAdd || f.Kind == FactMemberRemove {
				edgeFacts = append(edgeFacts, f)
			}
		}
	}
	sort.Slice(edgeFacts, func(i, k int) bool {
		return edgeFacts[i].ContentHash().Compare(edgeFacts[k].ContentHash()) < 0
	})
	for _, f := range edgeFacts {
		edge, add, err := DecodeEdgeFact(f.Value)
		if err != nil {
			continue
		}
		if add {
			_ = g.AddEdge(edge)
		} else {
			g.RemoveEdge(edge)
		}
	}
	j.graph = g
	j.graphDirty = false
	return g
}

// Graph returns a snapshot of the materialized key graph.
func (j *Journal) Graph() *KeyGraph {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.graphLocked().clone()
}
