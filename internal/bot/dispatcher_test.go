package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"circularbot/internal/domain"
)

func TestBuildMessageTitleLines(t *testing.T) {
	n := func(translated string) *domain.Notification {
		return &domain.Notification{
			Title:           "મૂળ શીર્ષક",
			TranslatedTitle: translated,
			PublishedDate:   "20/10/2025",
			DocumentURL:     "https://example.edu/c.pdf",
		}
	}

	cases := []struct {
		name         string
		translate    bool
		showOriginal bool
		translated   string
		wantLines    []string
		absentLines  []string
	}{
		{
			name: "original and translation", translate: true, showOriginal: true,
			translated: "Original Heading",
			wantLines:  []string{"*Original Title:* મૂળ શીર્ષક", "*English Title:* Original Heading"},
		},
		{
			name: "translation unusable falls back to original", translate: true, showOriginal: true,
			translated:  "[Translation unavailable]",
			wantLines:   []string{"*Original Title:* મૂળ શીર્ષક"},
			absentLines: []string{"*English Title:*"},
		},
		{
			name: "translation unusable without original shows plain title", translate: true, showOriginal: false,
			translated:  "",
			wantLines:   []string{"*Title:* મૂળ શીર્ષક"},
			absentLines: []string{"*Original Title:*", "*English Title:*"},
		},
		{
			name: "translation echoes original", translate: true, showOriginal: false,
			translated: "મૂળ શીર્ષક",
			wantLines:  []string{"*Title:* મૂળ શીર્ષક"},
		},
		{
			name: "no translation no original", translate: false, showOriginal: false,
			wantLines: []string{"*Title:* મૂળ શીર્ષક"},
		},
		{
			name: "no translation with original", translate: false, showOriginal: true,
			wantLines:   []string{"*Original Title:* મૂળ શીર્ષક"},
			absentLines: []string{"*Title:*", "*English Title:*"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDispatcher(nil, nil, tc.translate, tc.showOriginal, zerolog.Nop())
			msg := d.buildMessage(n(tc.translated))

			if !strings.HasPrefix(msg, "📢 *New Circular Released*\n") {
				t.Errorf("missing header: %q", msg)
			}
			if !strings.Contains(msg, "*Date:* 20/10/2025") {
				t.Errorf("missing date line: %q", msg)
			}
			if !strings.Contains(msg, "[View PDF](https://example.edu/c.pdf)") {
				t.Errorf("missing pdf link: %q", msg)
			}
			for _, want := range tc.wantLines {
				if !strings.Contains(msg, want) {
					t.Errorf("missing %q in %q", want, msg)
				}
			}
			for _, absent := range tc.absentLines {
				if strings.Contains(msg, absent) {
					t.Errorf("unexpected %q in %q", absent, msg)
				}
			}
		})
	}
}

func TestBuildMessageNoDocumentURL(t *testing.T) {
	d := NewDispatcher(nil, nil, false, true, zerolog.Nop())
	msg := d.buildMessage(&domain.Notification{Title: "No attachment", PublishedDate: "20/10/2025"})
	if strings.Contains(msg, "View PDF") {
		t.Errorf("pdf link rendered without url: %q", msg)
	}
}

func TestDeliverWrapsProviderError(t *testing.T) {
	sender := &fakeSender{failOn: func(string) error {
		return errors.New("telegram: 403 bot was kicked")
	}}
	d := NewDispatcher(sender, nil, false, true, zerolog.Nop())

	n := domain.NewNotification(candidate("c1", "Undeliverable circular", "20/10/2025"))
	_, err := d.Deliver(context.Background(), -100555, &n)
	if err == nil {
		t.Fatal("expected delivery error")
	}

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T", err)
	}
	if de.ChatID != -100555 {
		t.Errorf("chat id = %d", de.ChatID)
	}
	if !strings.Contains(err.Error(), "bot was kicked") {
		t.Errorf("error = %q", err)
	}
}

func TestDeliverSendsMarkdownWithoutPreview(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, &fakeTranslator{result: "Exam notice"}, true, true, zerolog.Nop())

	n := domain.NewNotification(candidate("c1", "પરીક્ષા સૂચના", "20/10/2025"))
	id, err := d.Deliver(context.Background(), -100555, &n)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if id != 1 {
		t.Errorf("message id = %d", id)
	}
	if n.TranslatedTitle != "Exam notice" {
		t.Errorf("translated title not recorded: %q", n.TranslatedTitle)
	}

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].chatID != -100555 {
		t.Errorf("chat id = %d", msgs[0].chatID)
	}
	if msgs[0].opts.ParseMode != "Markdown" {
		t.Errorf("parse mode = %q", msgs[0].opts.ParseMode)
	}
	if !msgs[0].opts.DisablePreview {
		t.Error("web page preview not disabled")
	}
}
