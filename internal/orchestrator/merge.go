package orchestrator

import (
	"encoding/json"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// mergeDeltas applies every agents.Delta an agent returned into state,
// converting the agent's schema-agnostic map into the bucket's concrete
// Record type. Bucket ownership is exclusive to the Orchestrator (the
// lifecycle note); this is the only place a Delta is ever applied.
func mergeDeltas(state *pipeline.PipelineState, deltas []agents.Delta) error {
	for _, delta := range deltas {
		bucket := pipeline.BucketName(delta.Bucket)
		for _, raw := range delta.Records {
			merged := patchExisting(state, bucket, raw)
			record, err := toRecord(bucket, merged)
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}
			if err := state.Upsert(bucket, record); err != nil {
				return err
			}
		}
	}
	return nil
}

// patchExisting folds raw's fields on top of the bucket's current record
// for the same identifier, so a later phase's narrower delta (e.g.
// Classification annotating page_type on a page Discovery already wrote)
// updates fields in place instead of silently dropping the ones it
// doesn't mention. Buckets held as RawRecord pass through unchanged.
func patchExisting(state *pipeline.PipelineState, bucket pipeline.BucketName, raw map[string]interface{}) map[string]interface{} {
	id, _ := raw["id"].(string)
	if id == "" {
		return raw
	}
	existing, ok := state.Bucket(bucket).Get(id)
	if !ok {
		return raw
	}
	// A record restored from a checkpoint round-trips through
	// PipelineState.UnmarshalJSON as a RawRecord wrapping its original
	// fields in Payload rather than the concrete Record type (see
	// checkpoint.go); unwrap that shape before patching, or the patch
	// would merge onto {"id":..,"payload":{...}} instead of the fields
	// themselves.
	var base map[string]interface{}
	if rr, isRaw := existing.(pipeline.RawRecord); isRaw {
		base = make(map[string]interface{}, len(rr.Payload)+1)
		for k, v := range rr.Payload {
			base[k] = v
		}
		base["id"] = rr.ID
	} else {
		data, err := json.Marshal(existing)
		if err != nil {
			return raw
		}
		if err := json.Unmarshal(data, &base); err != nil {
			return raw
		}
	}
	for k, v := range raw {
		base[k] = v
	}
	return base
}

// toMap is toRecord's inverse: it round-trips any concrete Record through
// JSON into a schema-agnostic map, the shape phase handlers hand agents as
// an AgentTask payload field (e.g. {"page": toMap(snapshot)}).
func toMap(r pipeline.Record) (map[string]interface{}, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toRecord converts a schema-agnostic map (as produced by an agent) into
// the concrete pipeline.Record type the named bucket holds, round-
// tripping through JSON so partial maps (a merge-style update touching
// only a few fields) decode cleanly into the zero value of fields they
// don't mention.
func toRecord(bucket pipeline.BucketName, raw map[string]interface{}) (pipeline.Record, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	switch bucket {
	case pipeline.BucketPages:
		var p pipeline.PageSnapshot
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case pipeline.BucketCompanies:
		var c pipeline.Company
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case pipeline.BucketEvents:
		var e pipeline.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case pipeline.BucketParticipants:
		var p pipeline.Participant
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case pipeline.BucketCompetitorSignals:
		var s pipeline.CompetitorSignal
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	case pipeline.BucketCanonicalEntities:
		var c pipeline.CanonicalEntity
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case pipeline.BucketGraphEdges:
		var g pipeline.GraphEdge
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		return g, nil
	case pipeline.BucketExports:
		var e pipeline.ExportArtifact
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		// crawl_queue, visited_urls, blocked_urls, errors: schema-agnostic,
		// held as RawRecord.
		id, _ := raw["id"].(string)
		if id == "" {
			return nil, nil
		}
		payload, _ := raw["payload"].(map[string]interface{})
		if payload == nil {
			payload = raw
		}
		return pipeline.RawRecord{ID: id, Payload: payload}, nil
	}
}
