package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"circularbot/internal/transport/telegram"
)

const onDemandLimit = 10

const (
	replyGroupsOnly = "⚠️ This command only works in groups, not in private messages."
	replyFetching   = "🔍 Fetching last 10 circulars from BKNMU website..."
	replyNoResults  = "❌ No circulars found on the website."
)

// Poller is the inbound Telegram surface of the command listener.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// CommandListener watches group chats for the /new command and runs
// an on-demand batch through the regular pipeline. It owns its own
// getUpdates cursor, independent of any other consumer.
type CommandListener struct {
	poller    Poller
	sender    Sender
	processor *Processor

	// pollTimeout is the getUpdates long-poll window. It must stay
	// short: shutdown cannot be observed while a poll is in flight.
	pollTimeout time.Duration

	log zerolog.Logger

	lastUpdateID int64
}

func NewCommandListener(poller Poller, sender Sender, processor *Processor, pollTimeout time.Duration, log zerolog.Logger) *CommandListener {
	return &CommandListener{
		poller:      poller,
		sender:      sender,
		processor:   processor,
		pollTimeout: pollTimeout,
		log:         log,
	}
}

// Poll performs one getUpdates round and handles every command in it.
// The cursor only moves forward, so a batch that arrives out of order
// can never rewind it.
func (l *CommandListener) Poll(ctx context.Context) error {
	ups, err := l.poller.GetUpdates(ctx, l.lastUpdateID+1, l.pollTimeout)
	if err != nil {
		return err
	}

	for _, up := range ups {
		if up.ID > l.lastUpdateID {
			l.lastUpdateID = up.ID
		}
		l.handle(ctx, up)
	}
	return nil
}

func (l *CommandListener) handle(ctx context.Context, up telegram.Update) {
	msg := up.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/new") {
		return
	}

	l.log.Info().Int64("chat_id", msg.Chat.ID).Str("chat_type", msg.Chat.Type).
		Msg("received /new command")

	if !msg.Chat.IsGroup() {
		l.reply(ctx, msg, replyGroupsOnly)
		return
	}

	l.reply(ctx, msg, replyFetching)

	res, err := l.processor.RunOnDemand(ctx, msg.Chat.ID, onDemandLimit)
	if err != nil {
		l.log.Error().Err(err).Msg("on-demand batch failed")
		return
	}
	if res.Scraped == 0 {
		l.reply(ctx, msg, replyNoResults)
		return
	}

	l.reply(ctx, msg, fmt.Sprintf("✅ Successfully sent %d circulars!", res.Sent))
}

// reply is best-effort: a lost acknowledgment must not abort command
// handling.
func (l *CommandListener) reply(ctx context.Context, msg *telegram.Message, text string) {
	_, err := l.sender.SendMessage(ctx, msg.Chat.ID, text, telegram.SendOptions{ReplyTo: msg.ID})
	if err != nil {
		l.log.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("command reply failed")
	}
}
