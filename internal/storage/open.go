package storage

import (
	"context"

	"github.com/rs/zerolog"

	"circularbot/internal/domain"
)

// Store is the ledger API used by the processing pipeline and the
// dashboard. Implementations must make InsertProcessing an
// insert-if-absent and keep MarkCompleted/MarkFailed safe to repeat.
type Store interface {
	// ExistsByID reports whether the id is already known, regardless of
	// its delivery status (a failed record counts as seen).
	ExistsByID(ctx context.Context, id string) (bool, error)

	// ExistsByContent matches on title plus an OR over the two URL
	// fields. It guards against fingerprint drift between scrapes.
	ExistsByContent(ctx context.Context, title, documentURL, sourceURL string) (bool, error)

	// InsertProcessing claims a candidate. Inserting an id that already
	// exists is a no-op and must not overwrite the existing record.
	InsertProcessing(ctx context.Context, n domain.Notification) error

	// MarkCompleted records a successful delivery: status completed,
	// sent true, error cleared. Safe to call on an already-completed id.
	MarkCompleted(ctx context.Context, id string, chatMessageID int64, chatID string) error

	// MarkFailed records a terminal failure and increments retry_count.
	// The error message is truncated to 500 characters.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// Recent returns up to limit records ordered by last_updated_at
	// descending.
	Recent(ctx context.Context, limit int) ([]domain.Notification, error)

	// Stats returns dashboard counters.
	Stats(ctx context.Context) (Stats, error)

	// PurgeOlderThan deletes records whose last_updated_at precedes
	// now minus the given number of days. Returns the deleted count.
	PurgeOlderThan(ctx context.Context, days int) (int64, error)

	// Backend names the engine in use ("mongodb", "postgresql", "sqlite").
	Backend() string

	Close() error
}

// Open connects the first available backend: MongoDB, then PostgreSQL,
// then SQLite. The SQLite fallback creates its database file, so under
// normal conditions Open only fails when even that is impossible.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	if cfg.MongoURI != "" {
		st, err := openMongo(ctx, cfg.MongoURI, log)
		if err == nil {
			log.Info().Str("backend", st.Backend()).Msg("storage ready")
			return st, nil
		}
		log.Warn().Err(err).Msg("mongodb unavailable, trying postgresql")
	}

	if cfg.PostgresURL != "" {
		st, err := openPostgres(ctx, cfg.PostgresURL, log)
		if err == nil {
			log.Info().Str("backend", st.Backend()).Msg("storage ready")
			return st, nil
		}
		log.Warn().Err(err).Msg("postgresql unavailable, falling back to sqlite")
	}

	st, err := openSQLite(cfg.SQLitePath, log)
	if err != nil {
		return nil, err
	}
	log.Info().Str("backend", st.Backend()).Str("path", cfg.SQLitePath).Msg("storage ready")
	return st, nil
}
