//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalakoo/neo4j-transfer/internal/config"
	"github.com/jalakoo/neo4j-transfer/internal/core"
	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
	"github.com/jalakoo/neo4j-transfer/pkg/utils"
)

// Requires two running Neo4j instances, e.g.:
//
//	NEO4J_URI=bolt://localhost:7687 NEO4J_PASSWORD=password \
//	TARGET_NEO4J_URI=bolt://localhost:7688 TARGET_NEO4J_PASSWORD=password \
//	go test -tags=integration ./test/integration/...
//
// The TARGET database is wiped during the test.
func setup(t *testing.T) (*core.Service, *driver.Neo4jDriver, *driver.Neo4jDriver) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	cfg := config.Default()
	if cfg.Source.URI == "" || cfg.Target.URI == "" {
		t.Skip("NEO4J_URI / TARGET_NEO4J_URI not set")
	}

	source, err := driver.NewNeo4jDriver(driver.Credentials{
		URI: cfg.Source.URI, Username: cfg.Source.Username,
		Password: cfg.Source.Password, Database: cfg.Source.Database,
	})
	require.NoError(t, err)

	target, err := driver.NewNeo4jDriver(driver.Credentials{
		URI: cfg.Target.URI, Username: cfg.Target.Username,
		Password: cfg.Target.Password, Database: cfg.Target.Database,
	})
	require.NoError(t, err)

	svc := core.NewService(source, target, core.NewLedger(), utils.GetLogger())
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, source, target
}

func seedSource(t *testing.T, source *driver.Neo4jDriver) {
	t.Helper()
	ctx := context.Background()

	_, err := source.ExecuteQuery(ctx, `
		MERGE (a:XferTestPerson {name: "alice"})
		MERGE (b:XferTestPerson {name: "bob"})
		MERGE (m:XferTestMovie {title: "heat"})
		MERGE (a)-[:XFER_TEST_KNOWS]->(b)
		MERGE (a)-[:XFER_TEST_WATCHED]->(m)
	`, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		source.ExecuteQuery(ctx, `
			MATCH (n) WHERE n:XferTestPerson OR n:XferTestMovie
			DETACH DELETE n
		`, nil)
	})
}

func TestTransferRoundTrip(t *testing.T) {
	svc, source, _ := setup(t)
	seedSource(t, source)
	ctx := context.Background()

	_, err := svc.Purge(ctx)
	require.NoError(t, err)

	spec := model.TransferSpec{
		NodeLabels:        []string{"XferTestPerson", "XferTestMovie"},
		RelationshipTypes: []string{"XFER_TEST_KNOWS", "XFER_TEST_WATCHED"},
	}

	rec, err := svc.Transfer(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, rec.Status)
	assert.Equal(t, model.Counts{Nodes: 3, Rels: 2}, rec.Counts)

	// Re-running the same selector must not duplicate anything.
	rec2, err := svc.Transfer(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, rec.Counts, rec2.Counts)

	// Revert the second transfer: it re-tagged the same entities, so
	// deletion removes them all and the first record now mismatches.
	result, err := svc.Revert(ctx, rec2.ID)
	require.NoError(t, err)
	assert.Equal(t, rec2.Counts, result.Deleted)

	again, err := svc.Revert(ctx, rec2.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Deleted.Total())
	assert.NotNil(t, again.Warning)
}

func TestDiscovery(t *testing.T) {
	svc, source, _ := setup(t)
	seedSource(t, source)

	labels, err := svc.Reader.Labels(context.Background())
	require.NoError(t, err)
	assert.Contains(t, labels, "XferTestPerson")

	types, err := svc.Reader.RelationshipTypes(context.Background())
	require.NoError(t, err)
	assert.Contains(t, types, "XFER_TEST_KNOWS")
}
