package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// CheckpointVersion is the stable top-level schema version for checkpoint
// files, bumped only on a breaking change to the wire shape.
const CheckpointVersion = 1

// checkpointDoc is the stable, self-contained on-disk shape of a
// checkpoint file, per the: {version, job_id, current_phase, phase_history,
// phase_progress, buckets, counters}.
type checkpointDoc struct {
	Version int `json:"version"`
	JobID string `json:"job_id"`
	CurrentPhase Phase `json:"current_phase"`
	PhaseHistory []PhaseHistoryEntry `json:"phase_history"`
	PhaseProgress map[Phase]interface{} `json:"phase_progress"`
	Buckets map[string][]rawRecord `json:"buckets"`
	Counters counterSnapshot `json:"counters"`
}

type rawRecord struct {
	ID string `json:"id"`
	Data json.RawMessage `json:"data"`
}

type counterSnapshot struct {
	TotalURLsDiscovered int `json:"total_urls_discovered"`
	TotalPagesFetched int `json:"total_pages_fetched"`
	TotalEntitiesResolved int `json:"total_entities_resolved"`
	TotalSignalsDetected int `json:"total_signals_detected"`
}

// MarshalJSON renders PipelineState into the stable checkpoint document
// shape, JSON-encoding each record alongside its identifier. A round trip
// through UnmarshalJSON keeps the job, phase, cursor and counter values and
// every record's identifier and encoded fields, but each record comes back
// as a RawRecord wrapper around those fields, not as its original concrete
// type.
func (s *PipelineState) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := checkpointDoc{
		Version: CheckpointVersion,
		JobID: s.JobID,
		CurrentPhase: s.CurrentPhase,
		PhaseHistory: s.PhaseHistory,
		PhaseProgress: s.PhaseProgress,
		Buckets: make(map[string][]rawRecord, len(s.buckets)),
		Counters: counterSnapshot{
			TotalURLsDiscovered: s.TotalURLsDiscovered,
			TotalPagesFetched: s.TotalPagesFetched,
			TotalEntitiesResolved: s.TotalEntitiesResolved,
			TotalSignalsDetected: s.TotalSignalsDetected,
		},
	}
	for name, b := range s.buckets {
		recs := make([]rawRecord, 0, b.Len())
		for _, r := range b.Records() {
			data, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("marshal record %s/%s: %w", name, r.RecordID(), err)
			}
			recs = append(recs, rawRecord{ID: r.RecordID(), Data: data})
		}
		doc.Buckets[string(name)] = recs
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores a PipelineState from a checkpoint document.
// Bucket records are kept as RawRecord wrappers: callers that need the
// concrete typed view re-decode Payload via json.Unmarshal on demand,
// keeping the on-disk format opaque to any one record type.
func (s *PipelineState) UnmarshalJSON(data []byte) error {
	var doc checkpointDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.mu = sync.RWMutex{}
	s.JobID = doc.JobID
	s.CurrentPhase = doc.CurrentPhase
	s.PhaseHistory = doc.PhaseHistory
	s.PhaseProgress = doc.PhaseProgress
	if s.PhaseProgress == nil {
		s.PhaseProgress = make(map[Phase]interface{})
	}
	s.TotalURLsDiscovered = doc.Counters.TotalURLsDiscovered
	s.TotalPagesFetched = doc.Counters.TotalPagesFetched
	s.TotalEntitiesResolved = doc.Counters.TotalEntitiesResolved
	s.TotalSignalsDetected = doc.Counters.TotalSignalsDetected

	s.buckets = make(map[BucketName]*Bucket, len(AllBuckets))
	for _, name := range AllBuckets {
		s.buckets[name] = newBucket()
	}
	for name, recs := range doc.Buckets {
		b := newBucket()
		for _, rr := range recs {
			var payload map[string]interface{}
			if err := json.Unmarshal(rr.Data, &payload); err != nil {
				return fmt.Errorf("unmarshal record %s/%s: %w", name, rr.ID, err)
			}
			b.Upsert(RawRecord{ID: rr.ID, Payload: payload})
		}
		s.buckets[BucketName(name)] = b
	}
	return nil
}

// Store persists PipelineState snapshots atomically to a local directory:
// write-to-temp, fsync, rename-over-target, specialized to the
// filesystem checkpoint layout instead of a generic byte store.
type Store struct {
	mu sync.Mutex
	root string
}

// NewStore creates a Store rooted at <root>/<job_id>.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (st *Store) jobDir(jobID string) string {
	return filepath.Join(st.root, jobID)
}

// SaveCheckpoint writes state.json atomically for the given job, and
// additionally writes a numbered checkpoint_<phase>_<n>.json snapshot if
// n > 0 (intra-phase checkpoints per the; n == 0 means "phase transition",
// which only updates the canonical state.json).
func (st *Store) SaveCheckpoint(ctx context.Context, state *PipelineState, n int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	dir := st.jobDir(state.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipelineerrors.InternalErr("create state directory", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return pipelineerrors.InternalErr("marshal checkpoint", err)
	}

	if err := atomicWrite(filepath.Join(dir, "state.json"), data); err != nil {
		return err
	}

	if n > 0 {
		name := fmt.Sprintf("checkpoint_%s_%d.json", state.CurrentPhase, n)
		if err := atomicWrite(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

// LoadCheckpoint reads the canonical state.json for a job ID and decodes
// it into a fresh PipelineState, for `--resume <job_id>`.
func (st *Store) LoadCheckpoint(ctx context.Context, jobID string) (*PipelineState, error) {
	path := filepath.Join(st.jobDir(jobID), "state.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pipelineerrors.NotFoundErr("checkpoint", jobID)
		}
		return nil, pipelineerrors.InternalErr("read checkpoint", err)
	}
	state := &PipelineState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, pipelineerrors.InternalErr("decode checkpoint", err)
	}
	return state, nil
}

// SaveHealthCheck persists the startup health summary document produced at
// Init to health_check.json, atomically like any other checkpoint.
func (st *Store) SaveHealthCheck(jobID string, summary interface{}) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	dir := st.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipelineerrors.InternalErr("create state directory", err)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return pipelineerrors.InternalErr("marshal health summary", err)
	}
	return atomicWrite(filepath.Join(dir, "health_check.json"), data)
}

// atomicWrite performs write-to-temp, fsync, rename: the commit point is
// the rename, so a reader never observes a partially written file. This
// rests directly on os/ioutil primitives since no dependency in the
// stack covers filesystem-specific durability.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return pipelineerrors.InternalErr("create temp checkpoint file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pipelineerrors.InternalErr("write temp checkpoint file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return pipelineerrors.InternalErr("fsync temp checkpoint file", err)
	}
	if err := tmp.Close(); err != nil {
		return pipelineerrors.InternalErr("close temp checkpoint file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return pipelineerrors.InternalErr("rename checkpoint file into place", err)
	}
	return nil
}
