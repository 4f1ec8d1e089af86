package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/postgres"
)

// Columns names the table columns a PostgresSource reads. ModTime may be
// empty.
type Columns struct {
	Path    string
	Name    string
	Content string
	ModTime string
}

// PostgresSource reads one document per row of a table inside a read-only
// repeatable-read transaction, so a walk sees a single snapshot.
type PostgresSource struct {
	client *postgres.Client
	table  string
	cols   Columns
	logger *slog.Logger
}

func NewPostgresSource(client *postgres.Client, table string, cols Columns, l *slog.Logger) (*PostgresSource, error) {
	if table == "" || cols.Path == "" || cols.Name == "" || cols.Content == "" {
		return nil, apperrors.Configf("postgres source needs a table and path, name and content columns")
	}
	return &PostgresSource{
		client: client,
		table:  table,
		cols:   cols,
		logger: logger.OrDefault(l, "postgres-source").With("table", table),
	}, nil
}

// NewPostgresSourceFromConfig reads table and column names from cfg.
func NewPostgresSourceFromConfig(client *postgres.Client, cfg config.SourceConfig, l *slog.Logger) (*PostgresSource, error) {
	return NewPostgresSource(client, cfg.Table, Columns{
		Path:    cfg.PathColumn,
		Name:    cfg.NameColumn,
		Content: cfg.ContentColumn,
		ModTime: cfg.ModTimeColumn,
	}, l)
}

func (s *PostgresSource) selectQuery() string {
	modTime := "NULL::timestamptz"
	if s.cols.ModTime != "" {
		modTime = postgres.QuoteQualified(s.cols.ModTime)
	}
	path := postgres.QuoteQualified(s.cols.Path)
	return fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s ORDER BY %s",
		path,
		postgres.QuoteQualified(s.cols.Name),
		postgres.QuoteQualified(s.cols.Content),
		modTime,
		postgres.QuoteQualified(s.table),
		path,
	)
}

// Walk streams rows ordered by path. Rows with NULL or non-UTF-8 content
// are skipped and counted.
func (s *PostgresSource) Walk(ctx context.Context, fn func(File) error) (Stats, error) {
	var stats Stats
	txOpts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.client.InTx(ctx, txOpts, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.selectQuery())
		if err != nil {
			return apperrors.Storage("query documents", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				path, name string
				content    sql.NullString
				modTime    sql.NullTime
			)
			if err := rows.Scan(&path, &name, &content, &modTime); err != nil {
				return apperrors.Storage("scan document row", err)
			}
			if !content.Valid || !utf8.ValidString(content.String) {
				s.logger.Warn("skipping row", "path", path, "reason", "content is NULL or not UTF-8")
				stats.Skipped++
				continue
			}
			f := File{Path: path, Name: name, Text: normalizeLines(content.String)}
			if modTime.Valid {
				f.ModTime = modTime.Time
			}
			if err := fn(f); err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += int64(len(f.Text))
		}
		if err := rows.Err(); err != nil {
			return apperrors.Storage("iterate document rows", err)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	s.logger.Info("walk complete", "rows", stats.Files, "skipped", stats.Skipped, "bytes", stats.Bytes)
	return stats, nil
}
