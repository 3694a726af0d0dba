package pipeline

import (
	"fmt"
	"sync"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// BucketName identifies one of the twelve named ordered buckets of the
// pipeline state.
type BucketName string

const (
	BucketCrawlQueue BucketName = "crawl_queue"
	BucketVisitedURLs BucketName = "visited_urls"
	BucketBlockedURLs BucketName = "blocked_urls"
	BucketPages BucketName = "pages"
	BucketCompanies BucketName = "companies"
	BucketEvents BucketName = "events"
	BucketParticipants BucketName = "participants"
	BucketCompetitorSignals BucketName = "competitor_signals"
	BucketCanonicalEntities BucketName = "canonical_entities"
	BucketGraphEdges BucketName = "graph_edges"
	BucketExports BucketName = "exports"
	BucketErrors BucketName = "errors"
)

// AllBuckets enumerates the twelve named buckets in a stable order, used for
// counters and for serialization.
var AllBuckets = []BucketName{
	BucketCrawlQueue, BucketVisitedURLs, BucketBlockedURLs, BucketPages,
	BucketCompanies, BucketEvents, BucketParticipants,
	BucketCompetitorSignals, BucketCanonicalEntities, BucketGraphEdges,
	BucketExports, BucketErrors,
}

// provenanceRequired is the set of buckets whose records must carry
// non-empty provenance (the invariant 4).
var provenanceRequired = map[BucketName]bool{
	BucketCompanies: true,
	BucketEvents: true,
	BucketParticipants: true,
	BucketCompetitorSignals: true,
	BucketCanonicalEntities: true,
	BucketExports: true,
}

// Bucket is an ordered, identifier-deduplicated sequence of records.
// Insertion by an already-present identifier updates in place rather than
// appending, per each Record's identity.
type Bucket struct {
	order []string
	byID map[string]Record
}

func newBucket() *Bucket {
	return &Bucket{byID: make(map[string]Record)}
}

// Upsert inserts r, or updates it in place if its identifier already
// exists, preserving original ordering position.
func (b *Bucket) Upsert(r Record) {
	id := r.RecordID()
	if _, exists := b.byID[id]; !exists {
		b.order = append(b.order, id)
	}
	b.byID[id] = r
}

// Len returns the number of distinct records in the bucket.
func (b *Bucket) Len() int { return len(b.order) }

// Records returns the bucket's records in insertion order.
func (b *Bucket) Records() []Record {
	out := make([]Record, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

// Get returns the record with the given identifier, if present.
func (b *Bucket) Get(id string) (Record, bool) {
	r, ok := b.byID[id]
	return r, ok
}

// PipelineState is the durable working set for one job. All mutation
// goes through exported methods that hold the internal mutex; bucket
// ownership is exclusive to the Orchestrator, which is the only caller
// expected to invoke them.
type PipelineState struct {
	mu sync.RWMutex

	JobID string `json:"job_id"`
	CurrentPhase Phase `json:"current_phase"`
	PhaseHistory []PhaseHistoryEntry `json:"phase_history"`
	PhaseProgress map[Phase]interface{} `json:"phase_progress"`

	buckets map[BucketName]*Bucket

	TotalURLsDiscovered int `json:"total_urls_discovered"`
	TotalPagesFetched int `json:"total_pages_fetched"`
	TotalEntitiesResolved int `json:"total_entities_resolved"`
	TotalSignalsDetected int `json:"total_signals_detected"`
}

// New creates a fresh PipelineState at Init for the given job ID.
func New(jobID string) *PipelineState {
	s := &PipelineState{
		JobID: jobID,
		CurrentPhase: PhaseInit,
		PhaseProgress: make(map[Phase]interface{}),
		buckets: make(map[BucketName]*Bucket),
	}
	for _, name := range AllBuckets {
		s.buckets[name] = newBucket()
	}
	return s
}

// Bucket returns the named bucket, creating it if absent (defensive; all
// twelve are pre-created by New).
func (s *PipelineState) Bucket(name BucketName) *Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		b = newBucket()
		s.buckets[name] = b
	}
	return b
}

// Upsert inserts or updates r into the named bucket, enforcing the
// provenance invariant for buckets that require it and refusing mutation
// once the state has reached a terminal phase (the invariant 2).
func (s *PipelineState) Upsert(name BucketName, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CurrentPhase.IsTerminal() {
		return pipelineerrors.InternalErr("cannot mutate bucket in terminal phase",
			fmt.Errorf("phase=%s bucket=%s", s.CurrentPhase, name))
	}

	if provenanceRequired[name] {
		p, ok := r.(Provenanced)
		if !ok || len(p.GetProvenance()) == 0 {
			return pipelineerrors.InternalErr("record missing required provenance",
				fmt.Errorf("bucket=%s id=%s", name, r.RecordID()))
		}
	}

	b, ok := s.buckets[name]
	if !ok {
		b = newBucket()
		s.buckets[name] = b
	}
	b.Upsert(r)
	return nil
}

// BucketCounts returns the current cardinality of every bucket, used for
// phase-transition log lines and checkpoint summaries.
func (s *PipelineState) BucketCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.buckets))
	for name, b := range s.buckets {
		out[string(name)] = b.Len()
	}
	return out
}

// Transition moves CurrentPhase to the given phase, appending a closed
// history entry for the phase being left. It refuses illegal transitions.
func (s *PipelineState) Transition(to Phase, enteredAt, exitedAt, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(s.CurrentPhase, to) {
		return pipelineerrors.InternalErr("illegal phase transition",
			fmt.Errorf("%s -> %s", s.CurrentPhase, to))
	}

	s.PhaseHistory = append(s.PhaseHistory, PhaseHistoryEntry{
		Phase: s.CurrentPhase,
		ExitedAt: exitedAt,
		Outcome: outcome,
	})
	delete(s.PhaseProgress, s.CurrentPhase)
	s.CurrentPhase = to
	if to.IsTerminal() {
		return nil
	}
	s.PhaseHistory = append(s.PhaseHistory, PhaseHistoryEntry{
		Phase: to,
		EnteredAt: enteredAt,
	})
	return nil
}

// SetCursor stores the phase-local progress cursor for the current phase.
// It is a no-op error to set a cursor for a phase other than CurrentPhase,
// enforcing the invariant 3 ("read only when current_phase == p").
func (s *PipelineState) SetCursor(phase Phase, cursor interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phase != s.CurrentPhase {
		return pipelineerrors.InternalErr("cursor write for non-current phase",
			fmt.Errorf("phase=%s current=%s", phase, s.CurrentPhase))
	}
	s.PhaseProgress[phase] = cursor
	return nil
}

// Cursor returns the phase-local cursor for the current phase, or nil.
func (s *PipelineState) Cursor(phase Phase) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if phase != s.CurrentPhase {
		return nil
	}
	return s.PhaseProgress[phase]
}

// IncCounters atomically bumps the four aggregate counters.
func (s *PipelineState) IncCounters(urls, pages, entities, signals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalURLsDiscovered += urls
	s.TotalPagesFetched += pages
	s.TotalEntitiesResolved += entities
	s.TotalSignalsDetected += signals
}
