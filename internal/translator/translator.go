// Package translator converts circular titles to English through the
// public Google Translate endpoint. Results are cached in memory.
package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Unavailable is returned when the translation service cannot be
// reached or gives an unusable answer. Callers treat it as a marker
// and fall back to the original title.
const Unavailable = "[Translation unavailable]"

const defaultEndpoint = "https://translate.googleapis.com/translate_a/single"

const (
	cacheLimit = 1000
	cacheEvict = 100
)

// keepChars whitelists Gujarati, Devanagari, word characters and basic
// punctuation before the text goes over the wire.
var keepChars = regexp.MustCompile(`[^\p{Gujarati}\p{Devanagari}\w\s.,!?:;\-()\[\]"']+`)

type Translator struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger

	mu    sync.Mutex
	cache map[string]string
	order []string
}

func New(log zerolog.Logger) *Translator {
	return &Translator{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
		cache:    make(map[string]string),
	}
}

// ToEnglish translates text to English. It returns "" for blank input
// and Unavailable when the service fails.
func (t *Translator) ToEnglish(ctx context.Context, text string) string {
	cleaned := cleanText(text)
	if cleaned == "" {
		return ""
	}

	t.mu.Lock()
	if hit, ok := t.cache[cleaned]; ok {
		t.mu.Unlock()
		return hit
	}
	t.mu.Unlock()

	translated, err := t.request(ctx, cleaned)
	if err != nil {
		t.log.Warn().Err(err).Msg("translation failed")
		return Unavailable
	}
	if translated == "" {
		return Unavailable
	}

	t.store(cleaned, translated)
	return translated
}

func (t *Translator) request(ctx context.Context, text string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", "en")
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return parseResponse(body)
}

// parseResponse decodes the endpoint's nested-array payload. The
// translation arrives as [[["segment","original",...],...],...]; the
// first element of each inner array is a translated segment.
func parseResponse(body []byte) (string, error) {
	var payload []any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	if len(payload) == 0 {
		return "", nil
	}
	segments, ok := payload[0].([]any)
	if !ok {
		return "", nil
	}

	var b strings.Builder
	for _, raw := range segments {
		seg, ok := raw.([]any)
		if !ok || len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (t *Translator) store(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.cache[key]; !ok {
		t.order = append(t.order, key)
	}
	t.cache[key] = value

	if len(t.cache) > cacheLimit {
		evict := t.order[:cacheEvict]
		t.order = t.order[cacheEvict:]
		for _, k := range evict {
			delete(t.cache, k)
		}
	}
}

// CacheSize reports the number of cached translations.
func (t *Translator) CacheSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cache)
}

func cleanText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = keepChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
