package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Format selects how outbound text is parsed by Telegram.
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

func (f Format) parseMode() string {
	if f == FormatMarkdown {
		return telego.ModeMarkdown
	}
	return ""
}

func (f Format) String() string {
	if f == FormatMarkdown {
		return "markdown"
	}
	return "plain"
}

// RateLimitedError reports a 429 from the Bot API together with the wait the
// server asked for.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ErrFormatRejected means Telegram refused the text because its markup did
// not parse. The send layer reacts by downgrading to plain text; nothing
// above it ever inspects error strings.
var ErrFormatRejected = errors.New("markup rejected by transport")

// MessageRef identifies a sent message for later edit/delete.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Transport is the minimal send surface the delivery engine needs. The real
// implementation wraps telego; tests substitute a scripted fake.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, format Format, replyTo int) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string, format Format) error
	Delete(ctx context.Context, ref MessageRef) error
	Typing(ctx context.Context, chatID int64)
}

type botTransport struct {
	bot *telego.Bot
}

func newBotTransport(bot *telego.Bot) *botTransport {
	return &botTransport{bot: bot}
}

func (t *botTransport) Send(ctx context.Context, chatID int64, text string, format Format, replyTo int) (MessageRef, error) {
	params := &telego.SendMessageParams{
		ChatID:    tu.ID(chatID),
		Text:      text,
		ParseMode: format.parseMode(),
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}

	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return MessageRef{}, classifyAPIError(err, format)
	}
	return MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

func (t *botTransport) Edit(ctx context.Context, ref MessageRef, text string, format Format) error {
	_, err := t.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(ref.ChatID),
		MessageID: ref.MessageID,
		Text:      text,
		ParseMode: format.parseMode(),
	})
	if err != nil {
		return classifyAPIError(err, format)
	}
	return nil
}

func (t *botTransport) Delete(ctx context.Context, ref MessageRef) error {
	return t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(ref.ChatID),
		MessageID: ref.MessageID,
	})
}

func (t *botTransport) Typing(ctx context.Context, chatID int64) {
	_ = t.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
}

// classifyAPIError maps Bot API failures onto the structured outcomes the
// delivery engine works with. This is the only place that looks at error
// descriptions.
func classifyAPIError(err error, format Format) error {
	var apiErr *telegoapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
		return &RateLimitedError{RetryAfter: time.Duration(apiErr.Parameters.RetryAfter) * time.Second}
	}
	if apiErr.ErrorCode == 429 {
		return &RateLimitedError{RetryAfter: time.Second}
	}

	if format == FormatMarkdown && apiErr.ErrorCode == 400 &&
		strings.Contains(strings.ToLower(apiErr.Description), "can't parse entities") {
		return fmt.Errorf("%w: %s", ErrFormatRejected, apiErr.Description)
	}

	return err
}

// isNotModified recognizes the harmless edit outcome where the new text
// equals the old one.
func isNotModified(err error) bool {
	var apiErr *telegoapi.Error
	return errors.As(err, &apiErr) &&
		strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}
