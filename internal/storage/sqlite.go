package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"circularbot/internal/domain"
)

//go:embed migrations.sql
var sqliteMigrationsFS embed.FS

// sqliteTimeLayout is fixed width, unlike RFC3339Nano which trims
// trailing fractional zeros. Timestamps are stored as text, so the
// ORDER BY and purge comparisons only sort chronologically when every
// value has the same width. Always formatted from UTC.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

type sqliteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func openSQLite(path string, log zerolog.Logger) (Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Backend() string { return "sqlite" }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ExistsByID(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_notifications WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) ExistsByContent(ctx context.Context, title, documentURL, sourceURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_notifications
		 WHERE title = ? AND (document_url = ? OR source_url = ?)`,
		title, documentURL, sourceURL).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) InsertProcessing(ctx context.Context, n domain.Notification) error {
	now := formatSQLiteTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_notifications
		 (id, title, title_en, category, published_date, document_url, source_url,
		  status, sent, retry_count, first_seen_at, last_updated_at)
		 VALUES (?,?,?,?,?,?,?,?,0,0,?,?)`,
		n.ID, n.Title, nullStr(n.TranslatedTitle), nullStr(n.Category),
		nullStr(n.PublishedDate), nullStr(n.DocumentURL), nullStr(n.SourceURL),
		string(domain.StatusProcessing), now, now,
	)
	return err
}

func (s *sqliteStore) MarkCompleted(ctx context.Context, id string, chatMessageID int64, chatID string) error {
	now := formatSQLiteTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE processed_notifications
		 SET status = ?, sent = 1, error_message = NULL,
		     chat_message_id = ?, chat_id = ?, last_updated_at = ?
		 WHERE id = ?`,
		string(domain.StatusCompleted), nullInt64(chatMessageID), nullStr(chatID), now, id,
	)
	return err
}

func (s *sqliteStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := formatSQLiteTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE processed_notifications
		 SET status = ?, error_message = ?, retry_count = retry_count + 1,
		     last_updated_at = ?
		 WHERE id = ?`,
		string(domain.StatusFailed), truncateError(errMsg), now, id,
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, title_en, category, published_date, document_url, source_url,
		        status, sent, chat_message_id, chat_id, error_message, retry_count,
		        first_seen_at, last_updated_at
		 FROM processed_notifications
		 ORDER BY last_updated_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanSQLiteRow(rows *sql.Rows) (domain.Notification, error) {
	var (
		n                                  domain.Notification
		titleEN, category, pubDate, docURL sql.NullString
		srcURL, chatID, errMsg             sql.NullString
		status, firstSeen, lastUpdated     string
		sent                               int
		msgID                              sql.NullInt64
	)
	err := rows.Scan(&n.ID, &n.Title, &titleEN, &category, &pubDate, &docURL, &srcURL,
		&status, &sent, &msgID, &chatID, &errMsg, &n.RetryCount, &firstSeen, &lastUpdated)
	if err != nil {
		return domain.Notification{}, err
	}
	n.TranslatedTitle = titleEN.String
	n.Category = category.String
	n.PublishedDate = pubDate.String
	n.DocumentURL = docURL.String
	n.SourceURL = srcURL.String
	n.Status = domain.Status(status)
	n.Sent = sent != 0
	n.ChatMessageID = msgID.Int64
	n.ChatID = chatID.String
	n.ErrorMessage = errMsg.String
	n.FirstSeenAt, _ = time.Parse(sqliteTimeLayout, firstSeen)
	n.LastUpdatedAt, _ = time.Parse(sqliteTimeLayout, lastUpdated)
	return n, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM processed_notifications`).Scan(&st.Total, &st.Completed, &st.Failed)
	return st, err
}

func (s *sqliteStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := formatSQLiteTime(time.Now().AddDate(0, 0, -days))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_notifications WHERE last_updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
