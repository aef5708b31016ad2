package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/authtail/authtail/internal/domain"
)

// PostgresTrendSource reads historical record timestamps and payload sizes
// from the persistence collaborator's live_logs table. Query-only: schema
// and writes belong to the collaborator.
type PostgresTrendSource struct {
	db    *sql.DB
	table string
}

func NewPostgresTrendSource(dsn, table string) (*PostgresTrendSource, error) {
	if table == "" {
		table = "live_logs"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresTrendSource{db: db, table: table}, nil
}

func (p *PostgresTrendSource) EventsSince(ctx context.Context, since time.Time) ([]domain.TrendRecord, error) {
	query := fmt.Sprintf(
		`SELECT created_at, octet_length(raw) FROM %s WHERE created_at >= $1 ORDER BY created_at ASC`,
		p.table,
	)

	rows, err := p.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query trend records: %w", err)
	}
	defer rows.Close()

	var records []domain.TrendRecord
	for rows.Next() {
		var rec domain.TrendRecord
		var size sql.NullInt64
		if err := rows.Scan(&rec.Timestamp, &size); err != nil {
			return nil, fmt.Errorf("scan trend record: %w", err)
		}
		rec.Bytes = size.Int64
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend records: %w", err)
	}
	return records, nil
}

func (p *PostgresTrendSource) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresTrendSource) Close() error {
	return p.db.Close()
}
