package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Dialect selects the schema syntax of the bolt server.
type Dialect string

const (
	DialectNeo4j    Dialect = "neo4j"
	DialectMemgraph Dialect = "memgraph"
)

// ParseDialect accepts "neo4j" or "memgraph"; empty means neo4j.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case "", DialectNeo4j:
		return DialectNeo4j, nil
	case DialectMemgraph:
		return d, nil
	default:
		return "", fmt.Errorf("graph: unknown dialect %q", s)
	}
}

// SchemaStatements returns the constraint and index statements for every label.
func SchemaStatements(d Dialect) []string {
	stmts := make([]string, 0, 2*len(Labels))
	for _, l := range Labels {
		key := strings.ToLower(l)
		switch d {
		case DialectMemgraph:
			stmts = append(stmts,
				fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.database, n.name IS UNIQUE", l),
				fmt.Sprintf("CREATE INDEX ON :%s(name)", l),
			)
		default:
			stmts = append(stmts,
				fmt.Sprintf("CREATE CONSTRAINT %s_key IF NOT EXISTS FOR (n:%s) REQUIRE (n.database, n.name) IS UNIQUE", key, l),
				fmt.Sprintf("CREATE INDEX %s_name IF NOT EXISTS FOR (n:%s) ON (n.name)", key, l),
			)
		}
	}
	return stmts
}

// provision runs the schema statements. Memgraph has no IF NOT EXISTS, so an
// "already exists" error there is not fatal.
func provision(ctx context.Context, run statementRunner, d Dialect, log *slog.Logger) error {
	for _, stmt := range SchemaStatements(d) {
		err := run(ctx, stmt, nil)
		if err == nil {
			continue
		}
		if d == DialectMemgraph && strings.Contains(strings.ToLower(err.Error()), "already exists") {
			log.Debug("graph schema already present", "statement", stmt)
			continue
		}
		return fmt.Errorf("graph: provision %q: %w", stmt, err)
	}
	return nil
}
