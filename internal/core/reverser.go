package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
)

// Reverser deletes from the target exactly the entities carrying one
// transfer's provenance timestamp. Deletion order is the reverse of load
// order: relationships first, then nodes.
type Reverser struct {
	Driver driver.GraphDriver
	Logger *logrus.Logger
}

func NewReverser(d driver.GraphDriver, logger *logrus.Logger) *Reverser {
	return &Reverser{Driver: d, Logger: logger}
}

// RevertResult reports what a revert actually removed. Warning is non-nil
// when the deleted counts differ from the record's counts, which is the
// expected outcome of reverting an already-reverted or purged transfer.
type RevertResult struct {
	Deleted model.Counts         `json:"deleted"`
	Warning *UndoMismatchWarning `json:"warning,omitempty"`
}

// Revert removes every target entity whose provenance timestamp matches the
// record's. Idempotent: a second run deletes nothing and reports a mismatch
// warning rather than failing.
func (r *Reverser) Revert(ctx context.Context, rec model.TransferRecord) (RevertResult, error) {
	tagValue := rec.TagValue()
	tsKey := rec.Spec.TimestampKey

	rels, err := r.deleteScoped(ctx, driver.DeleteRelationshipsByTimestampQuery, tsKey, tagValue)
	if err != nil {
		return RevertResult{}, fmt.Errorf("failed to delete relationships for transfer %s: %w", rec.ID, err)
	}

	nodes, err := r.deleteScoped(ctx, driver.DeleteNodesByTimestampQuery, tsKey, tagValue)
	if err != nil {
		return RevertResult{Deleted: model.Counts{Rels: rels}},
			fmt.Errorf("failed to delete nodes for transfer %s: %w", rec.ID, err)
	}

	result := RevertResult{Deleted: model.Counts{Nodes: nodes, Rels: rels}}
	if result.Deleted != rec.Counts {
		result.Warning = &UndoMismatchWarning{
			TransferID: rec.ID,
			Expected:   rec.Counts,
			Deleted:    result.Deleted,
		}
		r.Logger.WithFields(logrus.Fields{
			"transfer": rec.ID,
			"expected": rec.Counts,
			"deleted":  result.Deleted,
		}).Warn("Revert count mismatch")
	}

	return result, nil
}

func (r *Reverser) deleteScoped(ctx context.Context, query, tsKey, tagValue string) (int64, error) {
	res, err := r.Driver.ExecuteQuery(ctx, query, map[string]interface{}{
		"key": tsKey,
		"ts":  tagValue,
	})
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	v, _ := res.Records[0].Get("deleted")
	n, _ := v.(int64)
	return n, nil
}
