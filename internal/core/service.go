package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jalakoo/neo4j-transfer/internal/config"
	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
	"github.com/jalakoo/neo4j-transfer/internal/metrics"
)

const DefaultBufferSize = 2000

// Service wires the engine together: extraction from the source, tagging,
// batched loading into the target, the session ledger, revert and purge. A
// mutex serializes transfer, revert and purge against the target, since an
// in-flight load and a concurrent revert would corrupt each other's
// timestamp scoping.
type Service struct {
	Source   driver.GraphDriver
	Target   driver.GraphDriver
	Ledger   *Ledger
	Reader   *Reader
	Loader   *Loader
	Reverser *Reverser
	Purger   *PurgeExecutor
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger

	// BufferSize bounds the extraction/loading pipeline, so memory use is
	// buffer + one batch, not source graph size.
	BufferSize int

	// Provenance keys applied to specs that leave theirs blank, usually
	// set from the [transfer] config section. Per-spec keys still win.
	DefaultOriginalIDKey string
	DefaultTimestampKey  string

	UUIDGenerator func() string
	Now           func() time.Time

	mu sync.Mutex
}

func NewService(source, target driver.GraphDriver, ledger *Ledger, logger *logrus.Logger) *Service {
	return &Service{
		Source:        source,
		Target:        target,
		Ledger:        ledger,
		Reader:        NewReader(source, logger),
		Loader:        NewLoader(target, logger),
		Reverser:      NewReverser(target, logger),
		Purger:        NewPurgeExecutor(target, logger),
		Logger:        logger,
		BufferSize:    DefaultBufferSize,
		UUIDGenerator: uuid.NewString,
		Now:           time.Now,
	}
}

// ApplyTransferConfig overlays the [transfer] config section onto the
// service's tunables. Zero values leave the built-in defaults alone.
func (s *Service) ApplyTransferConfig(cfg config.TransferConfig) {
	if cfg.BatchSize > 0 {
		s.Loader.BatchSize = cfg.BatchSize
	}
	if cfg.BufferSize > 0 {
		s.BufferSize = cfg.BufferSize
	}
	if cfg.PageSize > 0 {
		s.Reader.PageSize = cfg.PageSize
	}
	if cfg.MaxRetries > 0 {
		s.Loader.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoffMs > 0 {
		s.Loader.Backoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	}
	if cfg.Parallelism > 0 {
		s.Loader.Parallelism = cfg.Parallelism
	}
	s.DefaultOriginalIDKey = cfg.OriginalIDKey
	s.DefaultTimestampKey = cfg.TimestampKey
}

// Transfer runs one whole transfer and appends its record to the ledger.
// The record is returned even on failure, carrying the counts that actually
// committed; a failing relationship phase never auto-cleans committed
// nodes — cleanup is an explicit Revert, so it stays auditable.
func (s *Service) Transfer(ctx context.Context, spec model.TransferSpec) (model.TransferRecord, error) {
	if err := s.Source.VerifyConnectivity(ctx); err != nil {
		return model.TransferRecord{}, &ConnectivityError{Side: "source", Err: err}
	}
	if err := s.Target.VerifyConnectivity(ctx); err != nil {
		return model.TransferRecord{}, &ConnectivityError{Side: "target", Err: err}
	}

	if spec.OriginalIDKey == "" {
		spec.OriginalIDKey = s.DefaultOriginalIDKey
	}
	if spec.TimestampKey == "" {
		spec.TimestampKey = s.DefaultTimestampKey
	}
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return model.TransferRecord{}, &ValidationError{Reason: "bad transfer spec", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := model.TransferRecord{
		ID:        s.UUIDGenerator(),
		Timestamp: s.uniqueTimestamp(),
		Spec:      spec,
	}

	s.Logger.WithFields(logrus.Fields{
		"transfer":  rec.ID,
		"timestamp": rec.TagValue(),
		"all":       spec.All,
		"labels":    spec.NodeLabels,
		"types":     spec.RelationshipTypes,
	}).Info("Starting transfer")

	start := s.Now()
	counts, err := s.runPipeline(ctx, spec, rec.Timestamp)
	rec.Counts = counts

	switch {
	case err == nil:
		rec.Status = model.StatusComplete
	case counts.Total() > 0:
		rec.Status = model.StatusPartial
		rec.Error = err.Error()
	default:
		rec.Status = model.StatusFailed
		rec.Error = err.Error()
	}

	// Every outcome is ledgered before it is surfaced, so the caller can
	// decide between retrying the transfer and reverting what committed.
	if appendErr := s.Ledger.Append(rec); appendErr != nil {
		s.Logger.WithError(appendErr).Error("Failed to append transfer record")
		if err == nil {
			err = appendErr
		}
	}

	if s.Metrics != nil {
		s.Metrics.TransfersTotal.WithLabelValues(string(rec.Status)).Inc()
		s.Metrics.TransferDuration.Observe(s.Now().Sub(start).Seconds())
		s.Metrics.EntitiesTransferredTotal.WithLabelValues(string(model.KindNode)).Add(float64(counts.Nodes))
		s.Metrics.EntitiesTransferredTotal.WithLabelValues(string(model.KindRelationship)).Add(float64(counts.Rels))
	}

	s.Logger.WithFields(logrus.Fields{
		"transfer": rec.ID,
		"status":   rec.Status,
		"nodes":    counts.Nodes,
		"rels":     counts.Rels,
	}).Info("Transfer finished")

	return rec, err
}

// runPipeline streams extract -> tag -> load through a bounded channel.
func (s *Service) runPipeline(ctx context.Context, spec model.TransferSpec, ts time.Time) (model.Counts, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tagger := NewTagger(spec)
	records := make(chan model.Record, s.BufferSize)

	var produceErr error
	go func() {
		defer close(records)
		for rec, err := range s.Reader.Extract(ctx, spec) {
			if err != nil {
				produceErr = err
				return
			}
			tagged, err := tagger.Tag(rec, ts)
			if err != nil {
				produceErr = err
				return
			}
			select {
			case records <- tagged:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.Loader.OnBatch = s.onBatch
	counts, err := s.Loader.Load(ctx, spec, records)
	if err != nil {
		return counts, err
	}
	return counts, produceErr
}

func (s *Service) onBatch(res BatchResult) {
	fields := logrus.Fields{
		"phase":    res.Phase,
		"batch":    res.Index,
		"size":     res.Size,
		"upserted": res.Upserted,
		"attempts": res.Attempts,
		"duration": res.Duration,
	}
	if res.Err != nil {
		s.Logger.WithFields(fields).WithError(res.Err).Error("Batch failed")
	} else {
		s.Logger.WithFields(fields).Debug("Batch committed")
	}

	if s.Metrics != nil {
		if res.Err == nil {
			s.Metrics.BatchesCommittedTotal.WithLabelValues(string(res.Phase)).Inc()
		}
		if res.Attempts > 1 {
			s.Metrics.BatchRetriesTotal.Add(float64(res.Attempts - 1))
		}
	}
}

// uniqueTimestamp guarantees the provenance timestamp is never reused: the
// ledger is consulted under the service mutex and the clock nudged forward
// on collision.
func (s *Service) uniqueTimestamp() time.Time {
	ts := s.Now().UTC()
	if last, ok := s.Ledger.Last(); ok && !ts.After(last.Timestamp) {
		ts = last.Timestamp.Add(time.Nanosecond)
	}
	return ts
}

// Revert deletes exactly the entities belonging to one ledgered transfer.
func (s *Service) Revert(ctx context.Context, transferID string) (RevertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Ledger.Get(transferID)
	if err != nil {
		return RevertResult{}, err
	}

	result, err := s.Reverser.Revert(ctx, rec)
	if err != nil {
		return result, err
	}

	if s.Metrics != nil {
		s.Metrics.RevertsTotal.Inc()
		s.Metrics.EntitiesDeletedTotal.WithLabelValues(string(model.KindNode)).Add(float64(result.Deleted.Nodes))
		s.Metrics.EntitiesDeletedTotal.WithLabelValues(string(model.KindRelationship)).Add(float64(result.Deleted.Rels))
	}
	return result, nil
}

// RevertTimestamp reverts by raw provenance values instead of a ledger
// entry. Intended for one-shot CLI use where the ledger of the original
// process is gone; no count mismatch can be detected.
func (s *Service) RevertTimestamp(ctx context.Context, tsKey, tagValue string) (model.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rels, err := s.Reverser.deleteScoped(ctx, driver.DeleteRelationshipsByTimestampQuery, tsKey, tagValue)
	if err != nil {
		return model.Counts{}, err
	}
	nodes, err := s.Reverser.deleteScoped(ctx, driver.DeleteNodesByTimestampQuery, tsKey, tagValue)
	if err != nil {
		return model.Counts{Rels: rels}, err
	}
	return model.Counts{Nodes: nodes, Rels: rels}, nil
}

// Purge wipes the target graph. Irreversible, not ledgered; any
// confirmation prompt is the caller's job.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.Purger.Purge(ctx)
	if err != nil {
		return 0, err
	}
	if s.Metrics != nil {
		s.Metrics.PurgesTotal.Inc()
	}
	return deleted, nil
}

// Health verifies both connections.
func (s *Service) Health(ctx context.Context) error {
	if err := s.Source.VerifyConnectivity(ctx); err != nil {
		return &ConnectivityError{Side: "source", Err: err}
	}
	if err := s.Target.VerifyConnectivity(ctx); err != nil {
		return &ConnectivityError{Side: "target", Err: err}
	}
	return nil
}

func (s *Service) Close(ctx context.Context) {
	if err := s.Source.Close(ctx); err != nil {
		s.Logger.WithError(err).Warn("Failed to close source driver")
	}
	if err := s.Target.Close(ctx); err != nil {
		s.Logger.WithError(err).Warn("Failed to close target driver")
	}
}
