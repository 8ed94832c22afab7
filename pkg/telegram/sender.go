package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ilyaksco/telebot-gemini/pkg/logger"
	"github.com/ilyaksco/telebot-gemini/pkg/markup"
)

const (
	// Telegram caps messages at 4096 characters. Repairing markup can append
	// a few closing delimiters per chunk, so chunks are cut below the cap.
	telegramMaxMessageLength = 4096
	chunkSafetyMargin        = 20

	chunkPaceInterval = 700 * time.Millisecond
)

const deliveryFailureNotice = "Sorry, I couldn't deliver the reply. Please try again."

// DeliveryRequest describes one logical outbound response, possibly longer
// than a single Telegram message.
type DeliveryRequest struct {
	ChatID int64
	Text   string
	Format Format

	// ReplyTo quotes the given message on the first chunk only. Zero means
	// no quote.
	ReplyTo int

	// RawFallback is sent as plain text when Text is effectively empty,
	// typically the model output before markup repair.
	RawFallback string
}

// DeliveryReport summarizes what actually reached the chat.
type DeliveryReport struct {
	Delivered int
	Chunks    int
	Err       error
}

// Sender turns a logical response into paced, size-respecting, markup-safe
// Telegram messages. Per chunk it retries a rate limit once and downgrades
// markdown to plain text once; anything beyond that aborts the rest of the
// response.
type Sender struct {
	transport Transport
	limit     int
	pace      *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewSender(transport Transport) *Sender {
	return &Sender{
		transport: transport,
		limit:     telegramMaxMessageLength - chunkSafetyMargin,
		pace:      rate.NewLimiter(rate.Every(chunkPaceInterval), 1),
		sleep:     sleepCtx,
	}
}

func (s *Sender) Deliver(ctx context.Context, req DeliveryRequest) DeliveryReport {
	text := req.Text
	format := req.Format

	if strings.TrimSpace(text) == "" {
		if strings.TrimSpace(req.RawFallback) == "" {
			logger.WarnCF("sender", "Nothing to deliver", map[string]interface{}{
				"chat_id": req.ChatID,
			})
			return DeliveryReport{}
		}
		// Markup repair ate everything, ship the original as plain text.
		text = req.RawFallback
		format = FormatPlain
	}

	chunks := markup.Split(text, s.limit)
	report := DeliveryReport{Chunks: len(chunks)}

	for i, chunk := range chunks {
		body := chunk
		chunkFormat := format
		if chunkFormat == FormatMarkdown {
			// Splitting can separate a delimiter from its pair, so every
			// chunk is balanced independently.
			repaired := markup.Balance(chunk)
			if strings.TrimSpace(repaired) == "" {
				chunkFormat = FormatPlain
			} else {
				body = repaired
			}
		}

		replyTo := 0
		if i == 0 {
			replyTo = req.ReplyTo
		}

		if err := s.pace.Wait(ctx); err != nil {
			report.Err = err
			return report
		}

		if err := s.sendChunk(ctx, req.ChatID, body, chunk, chunkFormat, replyTo); err != nil {
			logger.ErrorCF("sender", "Chunk delivery failed", map[string]interface{}{
				"chat_id": req.ChatID,
				"chunk":   i,
				"chunks":  len(chunks),
				"error":   err.Error(),
			})
			if i == 0 {
				// One notice per logical response, and only when nothing got
				// through at all.
				if _, nerr := s.transport.Send(ctx, req.ChatID, deliveryFailureNotice, FormatPlain, 0); nerr != nil {
					logger.WarnCF("sender", "Failure notice not delivered", map[string]interface{}{
						"chat_id": req.ChatID,
						"error":   nerr.Error(),
					})
				}
			}
			report.Err = err
			return report
		}
		report.Delivered++
	}

	return report
}

// sendChunk pushes one chunk through the transport, absorbing at most one
// rate-limit wait and one markdown-to-plain downgrade.
func (s *Sender) sendChunk(ctx context.Context, chatID int64, body, raw string, format Format, replyTo int) error {
	rateRetried := false
	for {
		_, err := s.transport.Send(ctx, chatID, body, format, replyTo)
		if err == nil {
			return nil
		}

		var limited *RateLimitedError
		if errors.As(err, &limited) {
			if rateRetried {
				return err
			}
			rateRetried = true
			logger.WarnCF("sender", "Rate limited, waiting", map[string]interface{}{
				"chat_id":     chatID,
				"retry_after": limited.RetryAfter.String(),
			})
			if serr := s.sleep(ctx, limited.RetryAfter); serr != nil {
				return serr
			}
			continue
		}

		if errors.Is(err, ErrFormatRejected) && format == FormatMarkdown {
			logger.WarnCF("sender", "Markup rejected, retrying as plain text", map[string]interface{}{
				"chat_id": chatID,
			})
			format = FormatPlain
			body = raw
			continue
		}

		return err
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
