package translator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newTestTranslator(t *testing.T, handler http.Handler) *Translator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tr := New(zerolog.Nop())
	tr.endpoint = srv.URL
	return tr
}

func TestToEnglish(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTranslator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("client"); got != "gtx" {
			t.Errorf("client = %q", got)
		}
		if got := r.URL.Query().Get("tl"); got != "en" {
			t.Errorf("target language = %q", got)
		}
		fmt.Fprint(w, `[[["Regarding exam ","પરીક્ષા ",null,null],["timetable","સમયપત્રક",null,null]],null,"gu"]`)
	}))

	got := tr.ToEnglish(context.Background(), "પરીક્ષા સમયપત્રક")
	if got != "Regarding exam timetable" {
		t.Errorf("translation = %q", got)
	}

	// Second call for the same text is served from cache.
	if again := tr.ToEnglish(context.Background(), "પરીક્ષા સમયપત્રક"); again != got {
		t.Errorf("cached translation = %q", again)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestToEnglishBlankInput(t *testing.T) {
	tr := New(zerolog.Nop())
	if got := tr.ToEnglish(context.Background(), "   "); got != "" {
		t.Errorf("blank input = %q, want empty", got)
	}
}

func TestToEnglishServiceFailure(t *testing.T) {
	tr := newTestTranslator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	got := tr.ToEnglish(context.Background(), "some title text")
	if got != Unavailable {
		t.Errorf("failure result = %q, want %q", got, Unavailable)
	}
	// Failures are never cached.
	if tr.CacheSize() != 0 {
		t.Errorf("cache size = %d, want 0", tr.CacheSize())
	}
}

func TestCacheEviction(t *testing.T) {
	tr := newTestTranslator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[[["out %s","in",null,null]],null,"gu"]`, r.URL.Query().Get("q"))
	}))

	for i := 0; i <= cacheLimit; i++ {
		tr.ToEnglish(context.Background(), fmt.Sprintf("title number %d", i))
	}
	if got := tr.CacheSize(); got != cacheLimit+1-cacheEvict {
		t.Errorf("cache size after eviction = %d, want %d", got, cacheLimit+1-cacheEvict)
	}

	// The oldest entry was evicted, the newest survives.
	tr.mu.Lock()
	_, oldest := tr.cache[cleanText("title number 0")]
	_, newest := tr.cache[cleanText(fmt.Sprintf("title number %d", cacheLimit))]
	tr.mu.Unlock()
	if oldest {
		t.Error("oldest entry still cached")
	}
	if !newest {
		t.Error("newest entry missing from cache")
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"exam (2025) - notice", "exam (2025) - notice"},
		{"પરીક્ષા સમયપત્રક", "પરીક્ષા સમયપત્રક"},
		{"title✨with❌emoji", "titlewithemoji"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := cleanText(tc.in); got != tc.want {
			t.Errorf("cleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"single segment", `[[["hello","x",null,null]],null,"gu"]`, "hello", false},
		{"multiple segments", `[[["a ","x",null,null],["b","y",null,null]],null,"gu"]`, "a b", false},
		{"empty payload", `[]`, "", false},
		{"not json", `<html>`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseResponse([]byte(tc.body))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
