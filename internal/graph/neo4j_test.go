package graph

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorded struct {
	cypher string
	params map[string]any
}

type recorder struct {
	stmts []recorded
	err   func(cypher string) error
}

func (r *recorder) run(_ context.Context, cypher string, params map[string]any) error {
	r.stmts = append(r.stmts, recorded{cypher, params})
	if r.err != nil {
		return r.err(cypher)
	}
	return nil
}

func TestCypherWriter_MergeNode(t *testing.T) {
	rec := &recorder{}
	w := &cypherWriter{partition: "ai", run: rec.run}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	err := w.MergeNode(context.Background(), Node{Label: LabelConcept, Name: "LLMs", Props: map[string]any{"topic": "AI"}}, at)
	require.NoError(t, err)
	require.Len(t, rec.stmts, 1)

	s := rec.stmts[0]
	require.Contains(t, s.cypher, "MERGE (n:Concept {database: $database, name: $name})")
	require.Contains(t, s.cypher, "ON CREATE SET")
	require.NotContains(t, s.cypher, "ON MATCH")
	require.Equal(t, "ai", s.params["database"])
	require.Equal(t, "LLMs", s.params["name"])
	require.Equal(t, "2025-01-02T02:04:05Z", s.params["created_at"])
	require.Equal(t, map[string]any{"topic": "AI"}, s.params["props"])
}

func TestCypherWriter_MergeEdge(t *testing.T) {
	rec := &recorder{}
	w := &cypherWriter{partition: "ai", run: rec.run}

	err := w.MergeEdge(context.Background(), RelHosts,
		Node{Label: LabelWebsite, Name: "example.org"}, Node{Label: LabelURL, Name: "http://example.org"}, time.Now())
	require.NoError(t, err)

	s := rec.stmts[0]
	require.Contains(t, s.cypher, "MATCH (a:Website {database: $database, name: $from})")
	require.Contains(t, s.cypher, "MATCH (b:URL {database: $database, name: $to})")
	require.Contains(t, s.cypher, "MERGE (a)-[r:HOSTS]->(b)")
	require.Equal(t, "example.org", s.params["from"])
	require.Equal(t, "http://example.org", s.params["to"])
}

func TestCypherWriter_RejectsUnknownNames(t *testing.T) {
	rec := &recorder{}
	w := &cypherWriter{partition: "ai", run: rec.run}
	ctx := context.Background()

	require.Error(t, w.MergeNode(ctx, Node{Label: "Person) DETACH DELETE n //", Name: "x"}, time.Now()))
	require.Error(t, w.MergeEdge(ctx, "OWNS", Node{Label: LabelURL}, Node{Label: LabelConcept}, time.Now()))
	require.Error(t, w.MergeEdge(ctx, RelHosts, Node{Label: "Nope"}, Node{Label: LabelURL}, time.Now()))
	require.Empty(t, rec.stmts)
}

func TestSchemaStatements(t *testing.T) {
	neo := SchemaStatements(DialectNeo4j)
	require.Len(t, neo, 2*len(Labels))
	require.Contains(t, neo, "CREATE CONSTRAINT keyword_key IF NOT EXISTS FOR (n:Keyword) REQUIRE (n.database, n.name) IS UNIQUE")
	require.Contains(t, neo, "CREATE INDEX url_name IF NOT EXISTS FOR (n:URL) ON (n.name)")

	mem := SchemaStatements(DialectMemgraph)
	require.Len(t, mem, 2*len(Labels))
	require.Contains(t, mem, "CREATE CONSTRAINT ON (n:Source) ASSERT n.database, n.name IS UNIQUE")
	require.Contains(t, mem, "CREATE INDEX ON :Email(name)")
}

func TestProvision(t *testing.T) {
	ctx := context.Background()
	exists := func(string) error { return errors.New("Constraint already exists") }

	rec := &recorder{err: exists}
	require.NoError(t, provision(ctx, rec.run, DialectMemgraph, slog.Default()))
	require.Len(t, rec.stmts, 2*len(Labels))

	rec = &recorder{err: exists}
	require.Error(t, provision(ctx, rec.run, DialectNeo4j, slog.Default()))
	require.Len(t, rec.stmts, 1)

	rec = &recorder{}
	require.NoError(t, provision(ctx, rec.run, DialectNeo4j, slog.Default()))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	require.Equal(t, DialectNeo4j, d)

	d, err = ParseDialect(" Memgraph ")
	require.NoError(t, err)
	require.Equal(t, DialectMemgraph, d)

	_, err = ParseDialect("janus")
	require.Error(t, err)
}
