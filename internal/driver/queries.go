package driver

import (
	"fmt"
	"strings"
)

const (
	ListNodeLabelsQuery = `
		CALL db.labels() YIELD label
		RETURN label ORDER BY label
	`

	ListRelationshipTypesQuery = `
		CALL db.relationshipTypes() YIELD relationshipType
		RETURN relationshipType ORDER BY relationshipType
	`

	// Revert scoping uses dynamic property access so overridden provenance
	// keys work without rebuilding the query text.
	DeleteRelationshipsByTimestampQuery = `
		MATCH ()-[r]->()
		WHERE r[$key] = $ts
		DELETE r
		RETURN count(r) AS deleted
	`

	DeleteNodesByTimestampQuery = `
		MATCH (n)
		WHERE n[$key] = $ts
		DETACH DELETE n
		RETURN count(n) AS deleted
	`

	PurgeAllQuery = `
		MATCH (n)
		DETACH DELETE n
		RETURN count(n) AS deleted
	`

	CountAllNodesQuery = `MATCH (n) RETURN count(n) AS count`

	CountAllRelationshipsQuery = `MATCH ()-[r]->() RETURN count(r) AS count`
)

// EscapeIdent quotes a label, relationship type or property key for literal
// use in Cypher. Backticks inside the identifier are doubled.
func EscapeIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func labelPattern(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(":")
		b.WriteString(EscapeIdent(l))
	}
	return b.String()
}

// NodePageQuery pages nodes, optionally restricted to one label. Ordering by
// elementId keeps pagination stable across pages.
func NodePageQuery(label string) string {
	match := "MATCH (n)"
	if label != "" {
		match = fmt.Sprintf("MATCH (n%s)", labelPattern([]string{label}))
	}
	return match + `
		RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props
		ORDER BY id SKIP $skip LIMIT $limit
	`
}

// RelationshipPageQuery pages relationships, optionally restricted to one
// type, returning endpoint elementIds along with each relationship.
func RelationshipPageQuery(relType string) string {
	match := "MATCH (a)-[r]->(b)"
	if relType != "" {
		match = fmt.Sprintf("MATCH (a)-[r:%s]->(b)", EscapeIdent(relType))
	}
	return match + `
		RETURN elementId(r) AS id, type(r) AS type, properties(r) AS props,
		       elementId(a) AS startId, elementId(b) AS endId
		ORDER BY id SKIP $skip LIMIT $limit
	`
}

func CountNodesQuery(label string) string {
	if label == "" {
		return CountAllNodesQuery
	}
	return fmt.Sprintf("MATCH (n%s) RETURN count(n) AS count", labelPattern([]string{label}))
}

func CountRelationshipsQuery(relType string) string {
	if relType == "" {
		return CountAllRelationshipsQuery
	}
	return fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS count", EscapeIdent(relType))
}

// UpsertNodesQuery merges one batch group of nodes sharing the same label
// set, keyed on the provenance id property. Rows are maps with "id" and
// "props"; props already carry the provenance pair, so SET += is enough to
// make re-runs idempotent.
func UpsertNodesQuery(labels []string, idKey string) string {
	return fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (n%s {%s: row.id})
		SET n += row.props
		RETURN count(n) AS upserted
	`, labelPattern(labels), EscapeIdent(idKey))
}

// UpsertRelationshipsQuery merges one batch group of relationships sharing a
// type. Endpoints are matched by the provenance id written during the node
// phase; rows whose endpoints are missing fall out of the MATCH and are not
// counted.
func UpsertRelationshipsQuery(relType string, idKey string) string {
	key := EscapeIdent(idKey)
	return fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (a {%s: row.startId})
		MATCH (b {%s: row.endId})
		MERGE (a)-[r:%s {%s: row.id}]->(b)
		SET r += row.props
		RETURN count(r) AS upserted
	`, key, key, EscapeIdent(relType), key)
}
