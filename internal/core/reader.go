package core

import (
	"context"
	"iter"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
)

const DefaultPageSize = 5000

// Reader extracts records from the source graph as a lazy sequence. Reads
// are paginated so memory stays bounded regardless of source size; nothing
// is ever written through a Reader.
type Reader struct {
	Driver   driver.GraphDriver
	PageSize int
	Logger   *logrus.Logger
}

func NewReader(d driver.GraphDriver, logger *logrus.Logger) *Reader {
	return &Reader{Driver: d, PageSize: DefaultPageSize, Logger: logger}
}

// Labels lists the node labels present in the source, sorted.
func (r *Reader) Labels(ctx context.Context) ([]string, error) {
	res, err := r.Driver.ExecuteQuery(ctx, driver.ListNodeLabelsQuery, nil)
	if err != nil {
		return nil, &ConnectivityError{Side: "source", Err: err}
	}
	return stringColumn(res, "label"), nil
}

// RelationshipTypes lists the relationship types present in the source, sorted.
func (r *Reader) RelationshipTypes(ctx context.Context) ([]string, error) {
	res, err := r.Driver.ExecuteQuery(ctx, driver.ListRelationshipTypesQuery, nil)
	if err != nil {
		return nil, &ConnectivityError{Side: "source", Err: err}
	}
	return stringColumn(res, "relationshipType"), nil
}

// Counts returns how many nodes and relationships the selector matches,
// without extracting them. Used for progress totals.
func (r *Reader) Counts(ctx context.Context, spec model.TransferSpec) (model.Counts, error) {
	var counts model.Counts
	for _, label := range r.nodeSelectors(spec) {
		n, err := r.count(ctx, driver.CountNodesQuery(label))
		if err != nil {
			return model.Counts{}, err
		}
		counts.Nodes += n
	}
	for _, relType := range r.relSelectors(spec) {
		n, err := r.count(ctx, driver.CountRelationshipsQuery(relType))
		if err != nil {
			return model.Counts{}, err
		}
		counts.Rels += n
	}
	return counts, nil
}

// Extract streams every entity matching the spec, nodes first, each exactly
// once. Within the node phase, labels are visited in sorted order and pages
// within a label are ordered by elementId; the relationship phase follows
// the same scheme over types. A node carrying two selected labels is
// emitted only under the first.
func (r *Reader) Extract(ctx context.Context, spec model.TransferSpec) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		nodeSelectors := r.nodeSelectors(spec)
		seen := map[string]struct{}{}
		dedupe := len(nodeSelectors) > 1

		for _, label := range nodeSelectors {
			query := driver.NodePageQuery(label)
			for skip := 0; ; skip += r.PageSize {
				res, err := r.page(ctx, query, skip)
				if err != nil {
					yield(nil, err)
					return
				}
				for _, rec := range res.Records {
					node := nodeFromRecord(rec)
					if dedupe {
						if _, ok := seen[node.OriginalID]; ok {
							continue
						}
						seen[node.OriginalID] = struct{}{}
					}
					if !yield(node, nil) {
						return
					}
				}
				if len(res.Records) < r.PageSize {
					break
				}
			}
		}

		for _, relType := range r.relSelectors(spec) {
			query := driver.RelationshipPageQuery(relType)
			for skip := 0; ; skip += r.PageSize {
				res, err := r.page(ctx, query, skip)
				if err != nil {
					yield(nil, err)
					return
				}
				for _, rec := range res.Records {
					if !yield(relFromRecord(rec), nil) {
						return
					}
				}
				if len(res.Records) < r.PageSize {
					break
				}
			}
		}
	}
}

// nodeSelectors returns the per-label extraction passes; the empty string
// means "all nodes".
func (r *Reader) nodeSelectors(spec model.TransferSpec) []string {
	if spec.All {
		return []string{""}
	}
	labels := append([]string(nil), spec.NodeLabels...)
	sort.Strings(labels)
	return labels
}

func (r *Reader) relSelectors(spec model.TransferSpec) []string {
	if spec.All {
		return []string{""}
	}
	types := append([]string(nil), spec.RelationshipTypes...)
	sort.Strings(types)
	return types
}

func (r *Reader) page(ctx context.Context, query string, skip int) (neo4j.EagerResult, error) {
	res, err := r.Driver.ExecuteQuery(ctx, query, map[string]interface{}{
		"skip":  skip,
		"limit": r.PageSize,
	})
	if err != nil {
		return neo4j.EagerResult{}, &ConnectivityError{Side: "source", Err: err}
	}
	r.Logger.WithFields(logrus.Fields{
		"skip":    skip,
		"records": len(res.Records),
	}).Debug("Fetched source page")
	return res, nil
}

func (r *Reader) count(ctx context.Context, query string) (int64, error) {
	res, err := r.Driver.ExecuteQuery(ctx, query, nil)
	if err != nil {
		return 0, &ConnectivityError{Side: "source", Err: err}
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	n, _ := res.Records[0].Get("count")
	count, _ := n.(int64)
	return count, nil
}

func nodeFromRecord(rec *neo4j.Record) model.NodeRecord {
	id, _ := rec.Get("id")
	labels, _ := rec.Get("labels")
	props, _ := rec.Get("props")
	return model.NodeRecord{
		OriginalID: asString(id),
		Labels:     asStrings(labels),
		Props:      asProps(props),
	}
}

func relFromRecord(rec *neo4j.Record) model.RelationshipRecord {
	id, _ := rec.Get("id")
	relType, _ := rec.Get("type")
	props, _ := rec.Get("props")
	startID, _ := rec.Get("startId")
	endID, _ := rec.Get("endId")
	return model.RelationshipRecord{
		OriginalID: asString(id),
		Type:       asString(relType),
		Props:      asProps(props),
		StartID:    asString(startID),
		EndID:      asString(endID),
	}
}

func stringColumn(res neo4j.EagerResult, key string) []string {
	out := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		v, _ := rec.Get(key)
		out = append(out, asString(v))
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, asString(item))
	}
	return out
}

func asProps(v any) map[string]any {
	props, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return props
}
