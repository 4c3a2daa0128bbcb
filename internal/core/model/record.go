package model

// Kind discriminates the two entity kinds moved by a transfer.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
)

// Record is either a NodeRecord or a RelationshipRecord. Property schemas are
// open: values are whatever the driver hands back (string, int64, float64,
// bool, temporal types, or lists of those).
type Record interface {
	RecordKind() Kind
	ID() string
	Properties() map[string]any
}

// NodeRecord is one node extracted from the source graph. OriginalID is the
// source elementId, kept as an opaque string.
type NodeRecord struct {
	Labels     []string       `json:"labels"`
	Props      map[string]any `json:"props"`
	OriginalID string         `json:"original_id"`
}

func (n NodeRecord) RecordKind() Kind           { return KindNode }
func (n NodeRecord) ID() string                 { return n.OriginalID }
func (n NodeRecord) Properties() map[string]any { return n.Props }

// RelationshipRecord is one relationship extracted from the source graph.
// StartID and EndID reference the endpoint nodes by their source elementId,
// not by any target-side identifier.
type RelationshipRecord struct {
	Type       string         `json:"type"`
	StartID    string         `json:"start_id"`
	EndID      string         `json:"end_id"`
	Props      map[string]any `json:"props"`
	OriginalID string         `json:"original_id"`
}

func (r RelationshipRecord) RecordKind() Kind           { return KindRelationship }
func (r RelationshipRecord) ID() string                 { return r.OriginalID }
func (r RelationshipRecord) Properties() map[string]any { return r.Props }
