package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"circularbot/internal/domain"
	"circularbot/internal/storage"
)

// Source produces circular candidates in page order. A limit of 0
// means everything available.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]domain.Candidate, error)
}

// BatchResult summarizes one pipeline run.
type BatchResult struct {
	Scraped int
	New     int
	Sent    int
	Failed  int
	Skipped int
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Processor runs the pipeline for a batch of candidates: filter,
// claim, deliver, record. Candidates are handled strictly one at a
// time so the store and the chat see a consistent order.
type Processor struct {
	source      Source
	store       storage.Store
	filter      *Filter
	dispatcher  *Dispatcher
	limiter     *rate.Limiter
	defaultChat int64
	log         zerolog.Logger
}

func NewProcessor(source Source, store storage.Store, filter *Filter, dispatcher *Dispatcher, limiter *rate.Limiter, defaultChat int64, log zerolog.Logger) *Processor {
	return &Processor{
		source:      source,
		store:       store,
		filter:      filter,
		dispatcher:  dispatcher,
		limiter:     limiter,
		defaultChat: defaultChat,
		log:         log,
	}
}

// Run scrapes the full listing and processes every new candidate into
// the default broadcast chat.
func (p *Processor) Run(ctx context.Context) (BatchResult, error) {
	return p.run(ctx, p.defaultChat, 0)
}

// RunOnDemand scrapes up to limit candidates and processes them into
// an explicitly chosen chat. Used by the /new command.
func (p *Processor) RunOnDemand(ctx context.Context, chatID int64, limit int) (BatchResult, error) {
	return p.run(ctx, chatID, limit)
}

func (p *Processor) run(ctx context.Context, chatID int64, limit int) (BatchResult, error) {
	var res BatchResult

	cands, err := p.source.Fetch(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("scrape candidates: %w", err)
	}
	res.Scraped = len(cands)

	fresh, err := p.filter.SelectNew(ctx, cands)
	if err != nil {
		return res, err
	}
	res.New = len(fresh)

	for _, c := range fresh {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := p.processOne(ctx, chatID, c)
		if err != nil {
			return res, err
		}
		switch out {
		case outcomeSent:
			res.Sent++
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	p.log.Info().Int("scraped", res.Scraped).Int("new", res.New).
		Int("sent", res.Sent).Int("failed", res.Failed).Msg("batch processed")
	return res, nil
}

// processOne claims and delivers a single candidate. Delivery errors
// are terminal: the record is marked failed and never retried. The
// returned error is reserved for context failures and store failures
// before the claim; once the id is claimed, recording problems are
// logged and the batch keeps moving, since the claim alone is enough
// to prevent a re-send.
func (p *Processor) processOne(ctx context.Context, chatID int64, c domain.Candidate) (outcome, error) {
	// The batch can take a while; recheck in case another path (the
	// /new command or an overlapping deployment) claimed the id.
	seen, err := p.store.ExistsByID(ctx, c.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("recheck id %s: %w", c.ID, err)
	}
	if seen {
		return outcomeSkipped, nil
	}

	n := domain.NewNotification(c)
	if err := p.store.InsertProcessing(ctx, n); err != nil {
		return outcomeSkipped, fmt.Errorf("claim %s: %w", c.ID, err)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return outcomeSkipped, err
		}
	}

	msgID, err := p.dispatcher.Deliver(ctx, chatID, &n)
	if err != nil {
		p.log.Error().Err(err).Str("id", c.ID).Msg("delivery failed")
		if markErr := p.store.MarkFailed(ctx, c.ID, err.Error()); markErr != nil {
			p.log.Error().Err(markErr).Str("id", c.ID).Msg("recording failure state failed")
		}
		return outcomeFailed, nil
	}

	chat := strconv.FormatInt(chatID, 10)
	if err := p.store.MarkCompleted(ctx, c.ID, int64(msgID), chat); err != nil {
		p.log.Error().Err(err).Str("id", c.ID).Msg("recording completion failed")
	}

	p.log.Info().Str("id", c.ID).Str("date", c.PublishedDate).Int("message_id", msgID).
		Msg("circular delivered")
	return outcomeSent, nil
}
