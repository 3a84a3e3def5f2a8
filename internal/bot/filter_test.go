package bot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"circularbot/internal/domain"
)

func TestSelectNewDateCutoff(t *testing.T) {
	store := newMemStore()
	cutoff := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	f := NewFilter(store, cutoff, zerolog.Nop())

	cands := []domain.Candidate{
		candidate("on-date", "Published on the cutoff day", "15/10/2025"),
		candidate("after", "Published later", "20/10/2025"),
		candidate("before", "Published the day before", "14/10/2025"),
		candidate("bad-date", "Unparseable date", "sometime"),
	}

	got, err := f.SelectNew(context.Background(), cands)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].ID != "on-date" || got[1].ID != "after" {
		t.Errorf("survivors = %q, %q", got[0].ID, got[1].ID)
	}
}

func TestSelectNewDropsKnownIDs(t *testing.T) {
	store := newMemStore()
	cutoff := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	f := NewFilter(store, cutoff, zerolog.Nop())

	known := candidate("known", "Already in the ledger", "20/10/2025")
	if err := store.InsertProcessing(context.Background(), domain.NewNotification(known)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := f.SelectNew(context.Background(), []domain.Candidate{
		known,
		candidate("fresh", "A brand new circular", "20/10/2025"),
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("survivors = %v", got)
	}
}

func TestSelectNewDropsDuplicateContent(t *testing.T) {
	store := newMemStore()
	cutoff := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	f := NewFilter(store, cutoff, zerolog.Nop())

	orig := candidate("orig", "Exam schedule notice", "20/10/2025")
	if err := store.InsertProcessing(context.Background(), domain.NewNotification(orig)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Same title and document URL but a different id, as happens when
	// the listing shifts a row between scrapes.
	dup := orig
	dup.ID = "shifted"

	got, err := f.SelectNew(context.Background(), []domain.Candidate{dup})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("duplicate content passed the filter: %v", got)
	}
}
