package model

import (
	"fmt"
	"time"
)

// Default provenance property keys. Every transferred entity carries this
// pair unless the spec overrides the key names.
const (
	DefaultOriginalIDKey = "_original_element_id"
	DefaultTimestampKey  = "_transfer_timestamp"
)

const DefaultBatchSize = 1000

// TransferSpec selects what to move and how to tag it. An empty selector
// (All=false, no labels, no types) is invalid; set All to move the whole
// graph.
type TransferSpec struct {
	All               bool     `json:"all" toml:"all"`
	NodeLabels        []string `json:"node_labels" toml:"node_labels"`
	RelationshipTypes []string `json:"relationship_types" toml:"relationship_types"`

	// Provenance key overrides. Empty means the defaults.
	OriginalIDKey string `json:"original_id_key,omitempty" toml:"original_id_key"`
	TimestampKey  string `json:"timestamp_key,omitempty" toml:"timestamp_key"`

	// Overwrite permits clobbering pre-existing source properties that
	// collide with the provenance keys.
	Overwrite bool `json:"overwrite" toml:"overwrite"`

	BatchSize int `json:"batch_size" toml:"batch_size"`
}

// Normalize fills zero values with defaults. Call before Validate.
func (s *TransferSpec) Normalize() {
	if s.OriginalIDKey == "" {
		s.OriginalIDKey = DefaultOriginalIDKey
	}
	if s.TimestampKey == "" {
		s.TimestampKey = DefaultTimestampKey
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
}

func (s TransferSpec) Validate() error {
	if !s.All && len(s.NodeLabels) == 0 && len(s.RelationshipTypes) == 0 {
		return fmt.Errorf("empty selector: set all=true or at least one node label or relationship type")
	}
	if s.OriginalIDKey == s.TimestampKey {
		return fmt.Errorf("provenance keys must differ, both are %q", s.OriginalIDKey)
	}
	return nil
}

// Status of a finished transfer.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
)

// Counts of entities committed to the target.
type Counts struct {
	Nodes int64 `json:"nodes"`
	Rels  int64 `json:"rels"`
}

func (c Counts) Total() int64 { return c.Nodes + c.Rels }

// TransferRecord is the immutable ledger entry for one transfer. Timestamp
// doubles as the provenance tag value (RFC3339Nano) and is unique per
// transfer.
type TransferRecord struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Spec      TransferSpec `json:"spec"`
	Counts    Counts       `json:"counts"`
	Status    Status       `json:"status"`
	Error     string       `json:"error,omitempty"`
}

// TagValue is the provenance timestamp exactly as written to the target.
func (r TransferRecord) TagValue() string {
	return r.Timestamp.UTC().Format(time.RFC3339Nano)
}

func (r TransferRecord) String() string {
	return fmt.Sprintf("transfer %s [%s]: %d nodes, %d relationships at %s",
		r.ID, r.Status, r.Counts.Nodes, r.Counts.Rels, r.TagValue())
}
