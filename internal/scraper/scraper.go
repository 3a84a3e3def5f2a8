// Package scraper fetches the university circulars listing page and
// extracts circular candidates from its HTML table.
package scraper

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"circularbot/internal/domain"
)

const minTitleLen = 5

var datePattern = regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})`)

type Config struct {
	URL        string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

type Scraper struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Scraper {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Scraper{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				// The listing site serves an incomplete certificate chain.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		log: log,
	}
}

// Fetch downloads the listing page and returns parsed candidates in
// page order. A limit of 0 returns everything found.
func (s *Scraper) Fetch(ctx context.Context, limit int) ([]domain.Candidate, error) {
	resp, err := s.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	base, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}

	var out []domain.Candidate
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		c, ok := s.parseRow(row, base)
		if !ok {
			return true
		}
		out = append(out, c)
		return limit <= 0 || len(out) < limit
	})

	s.log.Info().Int("candidates", len(out)).Msg("listing page scraped")
	return out, nil
}

func (s *Scraper) get(ctx context.Context, pageURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<(attempt-1)) * time.Second
			s.log.Warn().Err(lastErr).Dur("wait", wait).Int("attempt", attempt).
				Msg("listing fetch failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.cfg.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("listing page returned %s", resp.Status)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", pageURL, lastErr)
}

// parseRow extracts one candidate from a table row. Rows without a
// link, a plausible title, or a parseable date are skipped.
func (s *Scraper) parseRow(row *goquery.Selection, base *url.URL) (domain.Candidate, bool) {
	link := row.Find("a[href]").First()
	if link.Length() == 0 {
		return domain.Candidate{}, false
	}

	href, _ := link.Attr("href")
	docURL := absoluteURL(base, href)

	title := titleBeforeBreak(link)
	if len(title) < minTitleLen {
		return domain.Candidate{}, false
	}

	date := normalizeDate(link.Find("small").First().Text())
	if date == "" {
		return domain.Candidate{}, false
	}

	return domain.Candidate{
		ID:            domain.Fingerprint(date, title, docURL),
		Title:         title,
		Category:      "Circular",
		PublishedDate: date,
		DocumentURL:   docURL,
		SourceURL:     docURL,
	}, true
}

// titleBeforeBreak joins the link's text nodes that appear before the
// first <br>. The date lives after the break, inside a <small> tag.
func titleBeforeBreak(link *goquery.Selection) string {
	if len(link.Nodes) == 0 {
		return ""
	}
	var parts []string
	for n := link.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "br" {
			break
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// normalizeDate converts DD/MM/YYYY, DD-MM-YYYY or DD.MM.YYYY to a
// zero-padded DD/MM/YYYY. Returns "" when no date is recognized.
func normalizeDate(raw string) string {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return ""
	}
	return pad2(m[1]) + "/" + pad2(m[2]) + "/" + m[3]
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
