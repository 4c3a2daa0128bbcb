package core

import (
	"fmt"
	"time"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
)

// Tagger injects the provenance pair into extracted records. It is pure:
// the input record is never mutated, and tagging with the same timestamp is
// idempotent.
type Tagger struct {
	OriginalIDKey string
	TimestampKey  string
	Overwrite     bool
}

func NewTagger(spec model.TransferSpec) *Tagger {
	return &Tagger{
		OriginalIDKey: spec.OriginalIDKey,
		TimestampKey:  spec.TimestampKey,
		Overwrite:     spec.Overwrite,
	}
}

// Tag returns a copy of rec with the provenance properties set. A
// pre-existing property under either key is a ValidationError unless
// Overwrite was requested, with one exception: a property that already holds
// the exact value being written is a re-tag, not a collision.
func (t *Tagger) Tag(rec model.Record, ts time.Time) (model.Record, error) {
	tagValue := ts.UTC().Format(time.RFC3339Nano)

	props, err := t.tagProps(rec.Properties(), rec.ID(), tagValue)
	if err != nil {
		return nil, err
	}

	switch r := rec.(type) {
	case model.NodeRecord:
		r.Props = props
		return r, nil
	case model.RelationshipRecord:
		r.Props = props
		return r, nil
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown record kind %q", rec.RecordKind())}
	}
}

func (t *Tagger) tagProps(props map[string]any, originalID, tagValue string) (map[string]any, error) {
	tagged := make(map[string]any, len(props)+2)
	for k, v := range props {
		tagged[k] = v
	}

	if err := t.set(tagged, t.OriginalIDKey, originalID); err != nil {
		return nil, err
	}
	if err := t.set(tagged, t.TimestampKey, tagValue); err != nil {
		return nil, err
	}
	return tagged, nil
}

func (t *Tagger) set(props map[string]any, key, value string) error {
	if existing, ok := props[key]; ok && !t.Overwrite {
		if existing != any(value) {
			return &ValidationError{
				Reason: fmt.Sprintf("property %q already exists with value %v; set overwrite to clobber it", key, existing),
			}
		}
	}
	props[key] = value
	return nil
}
