package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"circularbot/internal/domain"
	"circularbot/internal/transport/telegram"
)

// Sender is the outbound Telegram surface the pipeline needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int, error)
}

// Translator converts a title to English. A result of "" or one
// wrapped in brackets means no usable translation.
type Translator interface {
	ToEnglish(ctx context.Context, text string) string
}

// Dispatcher formats a circular announcement and sends it to a chat.
type Dispatcher struct {
	sender       Sender
	translator   Translator
	translate    bool
	showOriginal bool
	log          zerolog.Logger
}

func NewDispatcher(sender Sender, translator Translator, translate, showOriginal bool, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:       sender,
		translator:   translator,
		translate:    translate,
		showOriginal: showOriginal,
		log:          log,
	}
}

// DeliveryError wraps a provider failure for one announcement.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Deliver sends the announcement for n to chatID and returns the new
// message id. When translation is enabled the translated title is set
// on n before the message is built.
func (d *Dispatcher) Deliver(ctx context.Context, chatID int64, n *domain.Notification) (int, error) {
	if d.translate && d.translator != nil {
		n.TranslatedTitle = d.translator.ToEnglish(ctx, n.Title)
	}
	id, err := d.sender.SendMessage(ctx, chatID, d.buildMessage(n), telegram.SendOptions{
		ParseMode:      tele.ModeMarkdown,
		DisablePreview: true,
	})
	if err != nil {
		return 0, &DeliveryError{ChatID: chatID, Err: err}
	}
	return id, nil
}

// buildMessage renders the announcement. The title lines depend on
// whether the original is shown and whether a usable translation
// exists; at least one title line is always present.
func (d *Dispatcher) buildMessage(n *domain.Notification) string {
	var b strings.Builder
	b.WriteString("📢 *New Circular Released*\n")

	if d.showOriginal {
		b.WriteString("*Original Title:* " + n.Title + "\n")
	}
	if d.translate {
		if usableTranslation(n.TranslatedTitle, n.Title) {
			b.WriteString("*English Title:* " + n.TranslatedTitle + "\n")
		} else if !d.showOriginal {
			b.WriteString("*Title:* " + n.Title + "\n")
		}
	} else if !d.showOriginal {
		b.WriteString("*Title:* " + n.Title + "\n")
	}

	b.WriteString("*Date:* " + n.PublishedDate + "\n")
	if n.DocumentURL != "" {
		b.WriteString("[View PDF](" + n.DocumentURL + ")")
	}
	return b.String()
}

// usableTranslation rejects empty results, echoes of the original and
// bracketed failure markers.
func usableTranslation(translated, original string) bool {
	return translated != "" && translated != original && !strings.HasPrefix(translated, "[")
}
