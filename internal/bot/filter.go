// Package bot contains the circular processing pipeline: candidate
// filtering, message dispatch, the command listener and the scheduler
// that drives both loops.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"circularbot/internal/domain"
	"circularbot/internal/storage"
)

// Filter drops candidates that are older than the configured cutoff
// or already known to the store.
type Filter struct {
	store  storage.Store
	cutoff time.Time
	log    zerolog.Logger
}

func NewFilter(store storage.Store, cutoff time.Time, log zerolog.Logger) *Filter {
	return &Filter{store: store, cutoff: cutoff, log: log}
}

// SelectNew returns the candidates that survive all three checks, in
// their original order. The date cutoff is inclusive: a circular
// published exactly on the cutoff date passes.
func (f *Filter) SelectNew(ctx context.Context, cands []domain.Candidate) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, c := range cands {
		published, err := domain.ParseDate(c.PublishedDate)
		if err != nil {
			f.log.Warn().Str("id", c.ID).Str("date", c.PublishedDate).
				Msg("candidate has unparseable date, skipping")
			continue
		}
		if published.Before(f.cutoff) {
			continue
		}

		seen, err := f.store.ExistsByID(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("check id %s: %w", c.ID, err)
		}
		if seen {
			continue
		}

		dup, err := f.store.ExistsByContent(ctx, c.Title, c.DocumentURL, c.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("check content for %s: %w", c.ID, err)
		}
		if dup {
			f.log.Debug().Str("id", c.ID).Msg("duplicate content under a different id, skipping")
			continue
		}

		out = append(out, c)
	}
	return out, nil
}
