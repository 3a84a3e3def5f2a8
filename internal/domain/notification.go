// Package domain holds the core entities shared by the scraper, the
// deduplication pipeline and the storage backends.
package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the normalized circular date format (day/month/year),
// as published on the source site.
const DateLayout = "02/01/2006"

// Status tracks the delivery lifecycle of a notification.
//
// Valid transitions are processing -> completed and processing -> failed.
// A failed notification is terminal: it is never re-attempted automatically.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Candidate is an immutable snapshot of one scraped circular. It exists
// only for the duration of a single scan; persistence happens through
// Notification.
type Candidate struct {
	ID            string
	Title         string
	Category      string
	PublishedDate string // normalized DD/MM/YYYY
	DocumentURL   string
	SourceURL     string
}

// Notification is the persisted ledger record for one candidate. The
// json tags shape the dashboard API output.
type Notification struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	TranslatedTitle string    `json:"title_en,omitempty"`
	Category        string    `json:"category,omitempty"`
	PublishedDate   string    `json:"published_date"`
	DocumentURL     string    `json:"document_url,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	Status          Status    `json:"status"`
	Sent            bool      `json:"sent"`
	ChatMessageID   int64     `json:"chat_message_id,omitempty"`
	ChatID          string    `json:"chat_id,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	RetryCount      int       `json:"retry_count"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}

// NewNotification builds the initial (processing) record for a candidate.
func NewNotification(c Candidate) Notification {
	now := time.Now().UTC()
	return Notification{
		ID:            c.ID,
		Title:         c.Title,
		Category:      c.Category,
		PublishedDate: c.PublishedDate,
		DocumentURL:   c.DocumentURL,
		SourceURL:     c.SourceURL,
		Status:        StatusProcessing,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
}

// Fingerprint derives the stable candidate id from the published date,
// title and document URL. Not meant to be tamper-proof; content-based
// dedup in the filter is the backstop for collisions and metadata drift.
func Fingerprint(publishedDate, title, documentURL string) string {
	src := strings.ToLower(fmt.Sprintf("%s|%s|%s", publishedDate, title, documentURL))
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

// ParseDate parses a normalized circular date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
