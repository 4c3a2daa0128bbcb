package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoff     = 500 * time.Millisecond
	DefaultParallelism = 1
)

// BatchResult describes one finished batch. Err is set when the batch
// exhausted its retries.
type BatchResult struct {
	Phase    model.Kind
	Index    int
	Size     int
	Upserted int64
	Attempts int
	Duration time.Duration
	Err      error
}

// Loader drains a tagged record stream into the target in fixed-size
// batches. All node batches commit before the first relationship batch is
// attempted; within a phase, up to Parallelism batches are in flight at
// once. Each batch is retried with exponential backoff before the transfer
// is aborted.
//
// OnBatch, when set, fires once per finished batch. It may be called
// concurrently from loader workers.
type Loader struct {
	Driver      driver.GraphDriver
	BatchSize   int
	MaxRetries  int
	Backoff     time.Duration
	Parallelism int
	OnBatch     func(BatchResult)
	Logger      *logrus.Logger
}

func NewLoader(d driver.GraphDriver, logger *logrus.Logger) *Loader {
	return &Loader{
		Driver:      d,
		BatchSize:   model.DefaultBatchSize,
		MaxRetries:  DefaultMaxRetries,
		Backoff:     DefaultBackoff,
		Parallelism: DefaultParallelism,
		Logger:      logger,
	}
}

// Load consumes records until the channel closes or a batch fails for good.
// The returned counts always reflect what actually committed, including on
// error, so the caller can ledger a partial transfer.
func (l *Loader) Load(ctx context.Context, spec model.TransferSpec, records <-chan model.Record) (model.Counts, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batchSize := l.BatchSize
	if spec.BatchSize > 0 {
		batchSize = spec.BatchSize
	}

	var nodesCommitted, relsCommitted atomic.Int64
	nodePhase := l.startPhase(ctx, cancel, spec, model.KindNode, batchSize, &nodesCommitted)
	var relPhase *phaseRunner

	var loadErr error
	for rec := range records {
		if ctx.Err() != nil {
			break
		}
		switch rec.RecordKind() {
		case model.KindNode:
			if relPhase != nil {
				loadErr = &ValidationError{Reason: "node record received after relationship phase began"}
			} else {
				loadErr = nodePhase.add(rec)
			}
		case model.KindRelationship:
			if relPhase == nil {
				// Phase boundary: every node batch must be committed
				// before the first relationship batch is attempted.
				if err := nodePhase.finish(); err != nil {
					loadErr = err
					break
				}
				relPhase = l.startPhase(ctx, cancel, spec, model.KindRelationship, batchSize, &relsCommitted)
			}
			loadErr = relPhase.add(rec)
		}
		if loadErr != nil {
			break
		}
	}

	nodeErr := nodePhase.finish()
	var relErr error
	if relPhase != nil {
		relErr = relPhase.finish()
	}

	counts := model.Counts{Nodes: nodesCommitted.Load(), Rels: relsCommitted.Load()}

	// Phase errors win: a failed batch cancels the context, so loadErr may
	// be a bare context error that would mask the root cause.
	for _, err := range []error{nodeErr, relErr, loadErr} {
		if err != nil {
			return counts, err
		}
	}
	// No phase failed; any remaining cancellation came from the caller.
	return counts, ctx.Err()
}

// phaseRunner owns the worker pool for one phase. add is called from the
// single feeding goroutine; commits happen on the workers.
type phaseRunner struct {
	loader    *Loader
	ctx       context.Context
	cancel    context.CancelFunc
	spec      model.TransferSpec
	kind      model.Kind
	batchSize int
	committed *atomic.Int64

	batches  chan indexedBatch
	wg       sync.WaitGroup
	pending  []model.Record
	next     int
	errOnce  sync.Once
	err      error
	finished bool
}

type indexedBatch struct {
	index   int
	records []model.Record
}

func (l *Loader) startPhase(ctx context.Context, cancel context.CancelFunc, spec model.TransferSpec, kind model.Kind, batchSize int, committed *atomic.Int64) *phaseRunner {
	p := &phaseRunner{
		loader:    l,
		ctx:       ctx,
		cancel:    cancel,
		spec:      spec,
		kind:      kind,
		batchSize: batchSize,
		committed: committed,
		batches:   make(chan indexedBatch),
	}

	workers := l.Parallelism
	if workers < 1 {
		workers = 1
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *phaseRunner) worker() {
	defer p.wg.Done()
	for batch := range p.batches {
		res := p.loader.commit(p.ctx, p.spec, p.kind, batch)
		if res.Err == nil {
			p.committed.Add(res.Upserted)
		}
		if cb := p.loader.OnBatch; cb != nil {
			cb(res)
		}
		if res.Err != nil {
			p.fail(&BatchWriteError{Phase: p.kind, Batch: batch.index, Attempts: res.Attempts, Err: res.Err})
			return
		}
	}
}

func (p *phaseRunner) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		p.cancel()
	})
}

func (p *phaseRunner) add(rec model.Record) error {
	p.pending = append(p.pending, rec)
	if len(p.pending) >= p.batchSize {
		return p.flush()
	}
	return nil
}

func (p *phaseRunner) flush() error {
	if len(p.pending) == 0 {
		return nil
	}
	batch := indexedBatch{index: p.next, records: p.pending}
	p.next++
	p.pending = nil
	select {
	case p.batches <- batch:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// finish flushes the tail batch, drains the pool, and reports the first
// batch failure if any. Safe to call more than once.
func (p *phaseRunner) finish() error {
	if p.finished {
		return p.err
	}
	p.finished = true
	_ = p.flush()
	close(p.batches)
	p.wg.Wait()
	return p.err
}

// commit writes one batch, retrying transient failures with exponential
// backoff. The whole batch is retried; MERGE keyed on the provenance id
// makes the re-run safe.
func (l *Loader) commit(ctx context.Context, spec model.TransferSpec, kind model.Kind, batch indexedBatch) BatchResult {
	res := BatchResult{Phase: kind, Index: batch.index, Size: len(batch.records)}
	start := time.Now()

	for attempt := 0; attempt <= l.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := l.Backoff << (attempt - 1)
			l.Logger.WithFields(logrus.Fields{
				"phase":   kind,
				"batch":   batch.index,
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Retrying batch")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				res.Err = ctx.Err()
				res.Duration = time.Since(start)
				return res
			}
		}
		res.Attempts++

		upserted, err := l.writeBatch(ctx, spec, kind, batch.records)
		if err == nil {
			res.Upserted = upserted
			res.Err = nil
			break
		}
		res.Err = err
		if ctx.Err() != nil {
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}

// writeBatch issues one bulk upsert per group inside the batch: nodes are
// grouped by label set, relationships by type, since Cypher cannot
// parameterize labels or types.
func (l *Loader) writeBatch(ctx context.Context, spec model.TransferSpec, kind model.Kind, records []model.Record) (int64, error) {
	if kind == model.KindNode {
		return l.writeNodes(ctx, spec, records)
	}
	return l.writeRelationships(ctx, spec, records)
}

func (l *Loader) writeNodes(ctx context.Context, spec model.TransferSpec, records []model.Record) (int64, error) {
	groups := map[string][]map[string]any{}
	groupLabels := map[string][]string{}
	for _, rec := range records {
		node := rec.(model.NodeRecord)
		labels := append([]string(nil), node.Labels...)
		sort.Strings(labels)
		key := strings.Join(labels, "\x00")
		groups[key] = append(groups[key], map[string]any{
			"id":    node.OriginalID,
			"props": node.Props,
		})
		groupLabels[key] = labels
	}

	var total int64
	for key, rows := range groups {
		query := driver.UpsertNodesQuery(groupLabels[key], spec.OriginalIDKey)
		n, err := l.upsert(ctx, query, rows)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (l *Loader) writeRelationships(ctx context.Context, spec model.TransferSpec, records []model.Record) (int64, error) {
	groups := map[string][]map[string]any{}
	for _, rec := range records {
		rel := rec.(model.RelationshipRecord)
		groups[rel.Type] = append(groups[rel.Type], map[string]any{
			"id":      rel.OriginalID,
			"props":   rel.Props,
			"startId": rel.StartID,
			"endId":   rel.EndID,
		})
	}

	var total int64
	for relType, rows := range groups {
		query := driver.UpsertRelationshipsQuery(relType, spec.OriginalIDKey)
		n, err := l.upsert(ctx, query, rows)
		if err != nil {
			return total, err
		}
		if n < int64(len(rows)) {
			// Endpoints missing in the target; MATCH dropped those rows.
			l.Logger.WithFields(logrus.Fields{
				"type":     relType,
				"expected": len(rows),
				"upserted": n,
			}).Warn("Some relationships skipped, endpoint nodes not found in target")
		}
		total += n
	}
	return total, nil
}

func (l *Loader) upsert(ctx context.Context, query string, rows []map[string]any) (int64, error) {
	res, err := l.Driver.ExecuteQuery(ctx, query, map[string]interface{}{"rows": rows})
	if err != nil {
		return 0, fmt.Errorf("bulk upsert failed: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	v, _ := res.Records[0].Get("upserted")
	n, _ := v.(int64)
	return n, nil
}
