package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// identifierPattern limits table and column names to plain identifiers, since
// they are interpolated into the query text.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// DatabaseSource loads rows from a Postgres table as documents. Each row
// becomes one document whose text joins the configured columns, so a question
// and its answer land in the same chunks.
type DatabaseSource struct {
	pool    *pgxpool.Pool
	table   string
	columns []string
	logger  *zap.Logger
}

// NewDatabaseSource connects to the database and validates identifiers.
func NewDatabaseSource(ctx context.Context, url, table string, columns []string, logger *zap.Logger) (*DatabaseSource, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if len(columns) == 0 {
		return nil, errors.New("at least one text column is required")
	}
	for _, col := range columns {
		if !identifierPattern.MatchString(col) {
			return nil, fmt.Errorf("invalid column name %q", col)
		}
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DatabaseSource{pool: pool, table: table, columns: columns, logger: logger}, nil
}

// Load reads all rows and returns one document per row. Rows where every
// configured column is empty are reported as failures.
func (s *DatabaseSource) Load(ctx context.Context) ([]Document, []Failure, error) {
	query := fmt.Sprintf("SELECT id, %s FROM %s ORDER BY id",
		strings.Join(s.columns, ", "), s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var (
		docs     []Document
		failures []Failure
	)
	for rows.Next() {
		var id int64
		values := make([]string, len(s.columns))
		dest := make([]any, 0, len(s.columns)+1)
		dest = append(dest, &id)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scanning row from %s: %w", s.table, err)
		}

		source := fmt.Sprintf("%s:%d", s.table, id)
		var parts []string
		for i, col := range s.columns {
			if strings.TrimSpace(values[i]) != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", col, values[i]))
			}
		}
		if len(parts) == 0 {
			failures = append(failures, Failure{Source: source, Reason: "empty row"})
			continue
		}

		docs = append(docs, Document{
			Source: source,
			Text:   strings.Join(parts, "\n"),
			Metadata: map[string]string{
				"table": s.table,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows from %s: %w", s.table, err)
	}

	s.logger.Info("loaded database rows",
		zap.String("table", s.table),
		zap.Int("documents", len(docs)),
		zap.Int("skipped", len(failures)))
	return docs, failures, nil
}

// Close releases the connection pool.
func (s *DatabaseSource) Close() {
	s.pool.Close()
}
