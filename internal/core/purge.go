package core

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jalakoo/neo4j-transfer/internal/driver"
)

// PurgeExecutor wipes the entire target graph in one detach-delete. Not
// reversible and never ledgered; confirmation gating belongs to the caller.
type PurgeExecutor struct {
	Driver driver.GraphDriver
	Logger *logrus.Logger
}

func NewPurgeExecutor(d driver.GraphDriver, logger *logrus.Logger) *PurgeExecutor {
	return &PurgeExecutor{Driver: d, Logger: logger}
}

// Purge returns the number of nodes deleted. Failures are fatal and never
// retried.
func (p *PurgeExecutor) Purge(ctx context.Context) (int64, error) {
	res, err := p.Driver.ExecuteQuery(ctx, driver.PurgeAllQuery, nil)
	if err != nil {
		return 0, &PurgeError{Err: err}
	}

	var deleted int64
	if len(res.Records) > 0 {
		v, _ := res.Records[0].Get("deleted")
		deleted, _ = v.(int64)
	}
	p.Logger.WithField("nodes_deleted", deleted).Warn("Target graph purged")
	return deleted, nil
}
