package core

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type QueryCall struct {
	Query  string
	Params map[string]interface{}
}

// MockDriver dispatches every query to OnQuery and records the call.
type MockDriver struct {
	mu              sync.Mutex
	Calls           []QueryCall
	OnQuery         func(query string, params map[string]interface{}) (neo4j.EagerResult, error)
	ConnectivityErr error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, QueryCall{Query: query, Params: params})
	m.mu.Unlock()
	if m.OnQuery == nil {
		return neo4j.EagerResult{}, nil
	}
	return m.OnQuery(query, params)
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error { return m.ConnectivityErr }

func (m *MockDriver) Close(ctx context.Context) error { return nil }

func (m *MockDriver) CallQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Query
	}
	return out
}

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func result(records ...*neo4j.Record) neo4j.EagerResult {
	return neo4j.EagerResult{Records: records}
}

func countResult(key string, n int64) neo4j.EagerResult {
	return result(record([]string{key}, n))
}

// fakeGraph answers reader queries for a small in-memory source graph.
type fakeGraph struct {
	nodes []model.NodeRecord
	rels  []model.RelationshipRecord
}

var (
	nodeLabelRe = regexp.MustCompile("MATCH \\(n:`((?:[^`]|``)*)`\\)")
	relTypeRe   = regexp.MustCompile("MATCH \\(a\\)-\\[r:`((?:[^`]|``)*)`\\]->\\(b\\)")
	relCountRe  = regexp.MustCompile("\\[r:`((?:[^`]|``)*)`\\]")
)

func (g *fakeGraph) driver() *MockDriver {
	return &MockDriver{OnQuery: g.handle}
}

func (g *fakeGraph) handle(query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	switch {
	case strings.Contains(query, "db.labels"):
		seen := map[string]bool{}
		var records []*neo4j.Record
		for _, n := range g.nodes {
			for _, l := range n.Labels {
				if !seen[l] {
					seen[l] = true
					records = append(records, record([]string{"label"}, l))
				}
			}
		}
		return result(records...), nil

	case strings.Contains(query, "db.relationshipTypes"):
		seen := map[string]bool{}
		var records []*neo4j.Record
		for _, r := range g.rels {
			if !seen[r.Type] {
				seen[r.Type] = true
				records = append(records, record([]string{"relationshipType"}, r.Type))
			}
		}
		return result(records...), nil

	case strings.Contains(query, "count(n) AS count"):
		label := ""
		if m := nodeLabelRe.FindStringSubmatch(query); m != nil {
			label = m[1]
		}
		var n int64
		for _, node := range g.nodes {
			if label != "" && !contains(node.Labels, label) {
				continue
			}
			n++
		}
		return countResult("count", n), nil

	case strings.Contains(query, "count(r) AS count"):
		relType := ""
		if m := relCountRe.FindStringSubmatch(query); m != nil {
			relType = m[1]
		}
		var n int64
		for _, r := range g.rels {
			if relType != "" && r.Type != relType {
				continue
			}
			n++
		}
		return countResult("count", n), nil

	case strings.Contains(query, "elementId(n) AS id"):
		label := ""
		if m := nodeLabelRe.FindStringSubmatch(query); m != nil {
			label = m[1]
		}
		var records []*neo4j.Record
		for _, n := range g.nodes {
			if label != "" && !contains(n.Labels, label) {
				continue
			}
			labels := make([]any, len(n.Labels))
			for i, l := range n.Labels {
				labels[i] = l
			}
			records = append(records, record(
				[]string{"id", "labels", "props"},
				n.OriginalID, labels, n.Props,
			))
		}
		return pageOf(records, params), nil

	case strings.Contains(query, "elementId(r) AS id"):
		relType := ""
		if m := relTypeRe.FindStringSubmatch(query); m != nil {
			relType = m[1]
		}
		var records []*neo4j.Record
		for _, r := range g.rels {
			if relType != "" && r.Type != relType {
				continue
			}
			records = append(records, record(
				[]string{"id", "type", "props", "startId", "endId"},
				r.OriginalID, r.Type, r.Props, r.StartID, r.EndID,
			))
		}
		return pageOf(records, params), nil
	}
	return neo4j.EagerResult{}, fmt.Errorf("fakeGraph: unexpected query: %s", query)
}

func pageOf(records []*neo4j.Record, params map[string]interface{}) neo4j.EagerResult {
	skip, _ := params["skip"].(int)
	limit, _ := params["limit"].(int)
	if skip >= len(records) {
		return result()
	}
	end := skip + limit
	if end > len(records) {
		end = len(records)
	}
	return result(records[skip:end]...)
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

// fakeTarget is a writable in-memory target. It applies upserts, scoped
// deletes and purges the way the real Cypher would, so round-trip tests can
// check the end state.
type fakeTarget struct {
	mu        sync.Mutex
	nodes     map[string]map[string]any // provenance id -> props
	rels      map[string]map[string]any // provenance id -> props
	relCalls  int
	nodeCalls int
	order     []string // "node" / "rel" upsert sequence

	// failRelCall makes the Nth (1-based) relationship upsert call fail
	// every time, to simulate retry exhaustion.
	failRelCall int
	// failNodeCallsOnce makes the Nth node upsert call fail once.
	failNodeCallOnce int
	failedOnce       bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		nodes: map[string]map[string]any{},
		rels:  map[string]map[string]any{},
	}
}

func (t *fakeTarget) driver() *MockDriver {
	return &MockDriver{OnQuery: t.handle}
}

func (t *fakeTarget) handle(query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case strings.Contains(query, "MERGE (n"):
		t.nodeCalls++
		t.order = append(t.order, "node")
		if t.failNodeCallOnce > 0 && t.nodeCalls == t.failNodeCallOnce && !t.failedOnce {
			t.failedOnce = true
			return neo4j.EagerResult{}, fmt.Errorf("transient write failure")
		}
		rows := params["rows"].([]map[string]any)
		for _, row := range rows {
			t.nodes[row["id"].(string)] = row["props"].(map[string]any)
		}
		return countResult("upserted", int64(len(rows))), nil

	case strings.Contains(query, "MERGE (a)-[r:"):
		t.relCalls++
		t.order = append(t.order, "rel")
		if t.failRelCall > 0 && t.relCalls >= t.failRelCall {
			return neo4j.EagerResult{}, fmt.Errorf("persistent write failure")
		}
		rows := params["rows"].([]map[string]any)
		var upserted int64
		for _, row := range rows {
			_, startOK := t.nodes[row["startId"].(string)]
			_, endOK := t.nodes[row["endId"].(string)]
			if !startOK || !endOK {
				continue
			}
			t.rels[row["id"].(string)] = row["props"].(map[string]any)
			upserted++
		}
		return countResult("upserted", upserted), nil

	case strings.Contains(query, "DELETE r"):
		key := params["key"].(string)
		ts := params["ts"].(string)
		var deleted int64
		for id, props := range t.rels {
			if props[key] == ts {
				delete(t.rels, id)
				deleted++
			}
		}
		return countResult("deleted", deleted), nil

	case strings.Contains(query, "DETACH DELETE n") && strings.Contains(query, "WHERE"):
		key := params["key"].(string)
		ts := params["ts"].(string)
		var deleted int64
		for id, props := range t.nodes {
			if props[key] == ts {
				delete(t.nodes, id)
				deleted++
			}
		}
		return countResult("deleted", deleted), nil

	case strings.Contains(query, "DETACH DELETE n"):
		deleted := int64(len(t.nodes))
		t.nodes = map[string]map[string]any{}
		t.rels = map[string]map[string]any{}
		return countResult("deleted", deleted), nil
	}
	return neo4j.EagerResult{}, fmt.Errorf("fakeTarget: unexpected query: %s", query)
}

func (t *fakeTarget) snapshot() (nodes, rels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes), len(t.rels)
}

func (t *fakeTarget) upsertOrder() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}
