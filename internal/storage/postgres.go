package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"circularbot/internal/domain"
)

//go:embed migrations/*.sql
var pgMigrationsFS embed.FS

const pgConnectTimeout = 5 * time.Second

type postgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func openPostgres(ctx context.Context, url string, log zerolog.Logger) (Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pgConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := migratePostgres(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &postgresStore{db: db, log: log}, nil
}

func migratePostgres(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	src, err := iofs.New(pgMigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *postgresStore) Backend() string { return "postgresql" }

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *postgresStore) ExistsByID(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_notifications WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *postgresStore) ExistsByContent(ctx context.Context, title, documentURL, sourceURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_notifications
		 WHERE title = $1 AND (document_url = $2 OR source_url = $3)`,
		title, documentURL, sourceURL).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *postgresStore) InsertProcessing(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_notifications
		 (id, title, title_en, category, published_date, document_url, source_url, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Title, nullStr(n.TranslatedTitle), nullStr(n.Category),
		nullStr(n.PublishedDate), nullStr(n.DocumentURL), nullStr(n.SourceURL),
		string(domain.StatusProcessing),
	)
	return err
}

func (s *postgresStore) MarkCompleted(ctx context.Context, id string, chatMessageID int64, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processed_notifications
		 SET status = $1, sent = TRUE, error_message = NULL,
		     chat_message_id = $2, chat_id = $3, last_updated_at = NOW()
		 WHERE id = $4`,
		string(domain.StatusCompleted), nullInt64(chatMessageID), nullStr(chatID), id,
	)
	return err
}

func (s *postgresStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processed_notifications
		 SET status = $1, error_message = $2, retry_count = retry_count + 1,
		     last_updated_at = NOW()
		 WHERE id = $3`,
		string(domain.StatusFailed), truncateError(errMsg), id,
	)
	return err
}

func (s *postgresStore) Recent(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, title_en, category, published_date, document_url, source_url,
		        status, sent, chat_message_id, chat_id, error_message, retry_count,
		        first_seen_at, last_updated_at
		 FROM processed_notifications
		 ORDER BY last_updated_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n                                  domain.Notification
			titleEN, category, pubDate, docURL sql.NullString
			srcURL, chatID, errMsg             sql.NullString
			status                             string
			msgID                              sql.NullInt64
		)
		err := rows.Scan(&n.ID, &n.Title, &titleEN, &category, &pubDate, &docURL, &srcURL,
			&status, &n.Sent, &msgID, &chatID, &errMsg, &n.RetryCount,
			&n.FirstSeenAt, &n.LastUpdatedAt)
		if err != nil {
			return nil, err
		}
		n.TranslatedTitle = titleEN.String
		n.Category = category.String
		n.PublishedDate = pubDate.String
		n.DocumentURL = docURL.String
		n.SourceURL = srcURL.String
		n.Status = domain.Status(status)
		n.ChatMessageID = msgID.Int64
		n.ChatID = chatID.String
		n.ErrorMessage = errMsg.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *postgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE status = 'failed')
		 FROM processed_notifications`).Scan(&st.Total, &st.Completed, &st.Failed)
	return st, err
}

func (s *postgresStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_notifications
		 WHERE last_updated_at < NOW() - $1 * INTERVAL '1 day'`, days)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
