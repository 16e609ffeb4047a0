// Package graphstore exports analysis results to Neo4j.
//
// Each snapshot becomes a (:Snapshot) node linked to its live classes.
// Classes own their live members, and allocated classes point at their
// initialization dominator:
//
//	(:Snapshot)-[:CONTAINS]->(:Class)-[:HAS_MEMBER]->(:Member)
//	(:Class)-[:DOMINATED_BY]->(:Class)
//	(:Snapshot)-[:MISSING]->(:Reference)
//
// All writes are batched UNWIND queries.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/715d/treeshake/pkg/treeshake"
)

// DefaultBatchSize is the number of rows sent per UNWIND query.
const DefaultBatchSize = 500

// Runner runs one Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// Config holds connection settings.
type Config struct {
	URI      string
	User     string
	Password string

	// Database selects the target database. If empty, the server default
	// is used.
	Database string

	// BatchSize limits rows per query. If zero, DefaultBatchSize is used.
	BatchSize int
}

// Exporter writes results through a Runner.
type Exporter struct {
	runner    Runner
	batchSize int
	close     func(context.Context) error
}

// New creates an exporter over runner.
func New(runner Runner, batchSize int) *Exporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Exporter{
		runner:    runner,
		batchSize: batchSize,
		close:     func(context.Context) error { return nil },
	}
}

// Open connects to Neo4j and returns a ready-to-use exporter.
func Open(ctx context.Context, cfg Config) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	e := New(&driverRunner{driver: driver, database: cfg.Database}, cfg.BatchSize)
	e.close = driver.Close
	return e, nil
}

// Close releases the underlying driver resources.
func (e *Exporter) Close(ctx context.Context) error {
	return e.close(ctx)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

var indexes = []string{
	"CREATE INDEX treeshake_snapshot IF NOT EXISTS FOR (n:Snapshot) ON (n.name)",
	"CREATE INDEX treeshake_class IF NOT EXISTS FOR (n:Class) ON (n.key)",
	"CREATE INDEX treeshake_member IF NOT EXISTS FOR (n:Member) ON (n.key)",
	"CREATE INDEX treeshake_reference IF NOT EXISTS FOR (n:Reference) ON (n.key)",
}

// CreateIndexes ensures the lookup indexes exist.
func (e *Exporter) CreateIndexes(ctx context.Context) error {
	for _, q := range indexes {
		if err := e.runner.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Clean removes everything previously exported for the named snapshot.
func (e *Exporter) Clean(ctx context.Context, snapshot string) error {
	err := e.runner.Run(ctx,
		`MATCH (n) WHERE (n:Snapshot OR n:Class OR n:Member OR n:Reference) AND n.snapshot = $snapshot
		 DETACH DELETE n`,
		map[string]any{"snapshot": snapshot})
	if err != nil {
		return fmt.Errorf("clean snapshot %s: %w", snapshot, err)
	}
	return nil
}

// Statement is one batched query.
type Statement struct {
	Cypher string
	Rows   []map[string]any
}

// Export writes r.
func (e *Exporter) Export(ctx context.Context, r *treeshake.Result) error {
	stmts := Statements(r)
	var queries int
	for _, st := range stmts {
		for batch := range slices.Chunk(st.Rows, e.batchSize) {
			params := map[string]any{"snapshot": r.Snapshot, "batch": batch}
			if err := e.runner.Run(ctx, st.Cypher, params); err != nil {
				return fmt.Errorf("export snapshot %s: %w", r.Snapshot, err)
			}
			queries++
		}
	}
	slog.Debug("exported snapshot", "snapshot", r.Snapshot, "queries", queries)
	return nil
}

// Statements builds the upserts for r in dependency order. Statements with
// no rows are omitted.
func Statements(r *treeshake.Result) []Statement {
	key := func(name string) string { return r.Snapshot + "|" + name }

	instantiated := make(map[string]bool, len(r.InstantiatedClasses))
	for _, c := range r.InstantiatedClasses {
		instantiated[c] = true
	}
	classes := make([]map[string]any, 0, len(r.LiveClasses))
	for _, c := range r.LiveClasses {
		classes = append(classes, map[string]any{
			"key":          key(c),
			"name":         c,
			"instantiated": instantiated[c],
		})
	}

	members := make([]map[string]any, 0, len(r.Members))
	for _, m := range r.Members {
		holder, _, _ := strings.Cut(m.Ref, "#")
		members = append(members, map[string]any{
			"key":              key(m.Ref),
			"class":            key(holder),
			"ref":              m.Ref,
			"name":             m.Name,
			"kind":             m.Kind,
			"reason":           m.Reason,
			"min_version":      m.MinVersion,
			"library_override": m.LibraryOverride == "true",
		})
	}

	dominance := make([]map[string]any, 0, len(r.Dominance))
	for _, d := range r.Dominance {
		dominance = append(dominance, map[string]any{
			"class":          key(d.Class),
			"dominator":      key(d.Dominator),
			"dominator_name": d.Dominator,
		})
	}

	missing := make([]map[string]any, 0, len(r.Missing))
	for _, ref := range r.Missing {
		missing = append(missing, map[string]any{"key": key(ref), "ref": ref})
	}

	all := []Statement{
		{
			Cypher: `UNWIND $batch AS row
			 MERGE (s:Snapshot {name: $snapshot})
			 SET s.snapshot = $snapshot, s.min_version = row.min_version`,
			Rows: []map[string]any{{"min_version": r.MinVersion}},
		},
		{
			Cypher: `UNWIND $batch AS row
			 MERGE (n:Class {key: row.key})
			 SET n.name = row.name, n.snapshot = $snapshot, n.instantiated = row.instantiated
			 WITH n
			 MATCH (s:Snapshot {name: $snapshot})
			 MERGE (s)-[:CONTAINS]->(n)`,
			Rows: classes,
		},
		{
			Cypher: `UNWIND $batch AS row
			 MERGE (n:Member {key: row.key})
			 SET n.ref = row.ref, n.name = row.name, n.kind = row.kind, n.snapshot = $snapshot,
			     n.reason = row.reason, n.min_version = row.min_version,
			     n.library_override = row.library_override
			 WITH n, row
			 MATCH (c:Class {key: row.class})
			 MERGE (c)-[:HAS_MEMBER]->(n)`,
			Rows: members,
		},
		{
			Cypher: `UNWIND $batch AS row
			 MATCH (c:Class {key: row.class})
			 MERGE (d:Class {key: row.dominator})
			 ON CREATE SET d.name = row.dominator_name, d.snapshot = $snapshot, d.instantiated = false
			 MERGE (c)-[:DOMINATED_BY]->(d)`,
			Rows: dominance,
		},
		{
			Cypher: `UNWIND $batch AS row
			 MERGE (n:Reference {key: row.key})
			 SET n.ref = row.ref, n.snapshot = $snapshot
			 WITH n
			 MATCH (s:Snapshot {name: $snapshot})
			 MERGE (s)-[:MISSING]->(n)`,
			Rows: missing,
		},
	}
	return slices.DeleteFunc(all, func(st Statement) bool { return len(st.Rows) == 0 })
}
