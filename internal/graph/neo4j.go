package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type statementRunner func(ctx context.Context, cypher string, params map[string]any) error

// Config describes the bolt connection.
type Config struct {
	URI         string
	Username    string
	Password    string
	Database    string
	Partition   string
	Dialect     Dialect
	MaxPoolSize int
	Timeout     time.Duration
}

// Neo4j is a bolt-backed knowledge graph. It speaks to Neo4j or Memgraph.
type Neo4j struct {
	driver    neo4j.DriverWithContext
	database  string
	partition string
	dialect   Dialect
	log       *slog.Logger
}

// NewNeo4j opens the driver and verifies connectivity.
func NewNeo4j(ctx context.Context, cfg Config, log *slog.Logger) (*Neo4j, error) {
	if cfg.URI == "" {
		return nil, errors.New("graph: uri must not be empty")
	}
	if cfg.Partition == "" {
		return nil, errors.New("graph: partition must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graph: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}

	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectNeo4j
	}
	return &Neo4j{
		driver:    driver,
		database:  cfg.Database,
		partition: cfg.Partition,
		dialect:   dialect,
		log:       log.With("component", "graph"),
	}, nil
}

// EnsureSchema provisions constraints and indexes. Call it once at startup.
func (g *Neo4j) EnsureSchema(ctx context.Context) error {
	sess := g.newSession(ctx)
	defer sess.Close(ctx)

	return provision(ctx, func(ctx context.Context, cypher string, params map[string]any) error {
		res, err := sess.Run(ctx, cypher, params)
		if err != nil {
			return err
		}
		_, err = res.Consume(ctx)
		return err
	}, g.dialect, g.log)
}

// Open acquires a session for one run. The caller must Close it.
func (g *Neo4j) Open(ctx context.Context) (Session, error) {
	if err := g.driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("graph: Open: %w", err)
	}
	return &boltSession{sess: g.newSession(ctx), partition: g.partition}, nil
}

// Close releases the driver.
func (g *Neo4j) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *Neo4j) newSession(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.database,
	})
}

type boltSession struct {
	sess      neo4j.SessionWithContext
	partition string
}

func (s *boltSession) WriteConcept(ctx context.Context, fn func(Writer) error) error {
	_, err := s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		w := &cypherWriter{
			partition: s.partition,
			run: func(ctx context.Context, cypher string, params map[string]any) error {
				res, err := tx.Run(ctx, cypher, params)
				if err != nil {
					return err
				}
				_, err = res.Consume(ctx)
				return err
			},
		}
		return nil, fn(w)
	})
	return err
}

func (s *boltSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

// cypherWriter renders merges as Cypher. Labels and relationship types are
// interpolated, so both are checked against the known sets.
type cypherWriter struct {
	partition string
	run       statementRunner
}

func (w *cypherWriter) MergeNode(ctx context.Context, n Node, createdAt time.Time) error {
	if err := checkLabel(n.Label); err != nil {
		return err
	}
	props := n.Props
	if props == nil {
		props = map[string]any{}
	}
	cypher := fmt.Sprintf(`MERGE (n:%s {database: $database, name: $name})
ON CREATE SET n += $props, n.created_at = $created_at`, n.Label)
	return w.run(ctx, cypher, map[string]any{
		"database":   w.partition,
		"name":       n.Name,
		"props":      props,
		"created_at": timestamp(createdAt),
	})
}

func (w *cypherWriter) MergeEdge(ctx context.Context, rel string, from, to Node, createdAt time.Time) error {
	if !relationships[rel] {
		return fmt.Errorf("graph: unknown relationship %q", rel)
	}
	if err := checkLabel(from.Label); err != nil {
		return err
	}
	if err := checkLabel(to.Label); err != nil {
		return err
	}
	cypher := fmt.Sprintf(`MATCH (a:%s {database: $database, name: $from})
MATCH (b:%s {database: $database, name: $to})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.created_at = $created_at`, from.Label, to.Label, rel)
	return w.run(ctx, cypher, map[string]any{
		"database":   w.partition,
		"from":       from.Name,
		"to":         to.Name,
		"created_at": timestamp(createdAt),
	})
}

func checkLabel(l string) error {
	for _, known := range Labels {
		if l == known {
			return nil
		}
	}
	return fmt.Errorf("graph: unknown label %q", l)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
