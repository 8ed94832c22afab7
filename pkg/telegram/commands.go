package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/ilyaksco/telebot-gemini/pkg/gemini"
	"github.com/ilyaksco/telebot-gemini/pkg/logger"
	"github.com/ilyaksco/telebot-gemini/pkg/markup"
)

const (
	startText = "Hi! I'm a Gemini-powered assistant, starting with a clean slate.\n" +
		"Talk to me directly in private chat, or use a trigger command in groups.\n" +
		"Send /help for everything I can do."

	aboutText = "I relay your messages and photos to Google Gemini and bring the answers back.\n" +
		"Long answers arrive in several messages; group albums are understood as one request."

	resetDoneText = "Done. I've forgotten our conversation."
	resetFailText = "I couldn't clear the history right now. Please try again later."
	tdUsageText   = "Usage: /td <prompt>, or reply to a message with /td."
	thinkingText  = "Thinking deeper..."
)

// parseCommand extracts a leading bot command and its arguments. Commands
// addressed to a different bot ("/help@otherbot") are ignored.
func parseCommand(text, botUsername string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	head := text
	rest := ""
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		head = text[:i]
		rest = strings.TrimSpace(text[i+1:])
	}

	if at := strings.Index(head, "@"); at >= 0 {
		if !strings.EqualFold(head[at+1:], botUsername) {
			return "", ""
		}
		head = head[:at]
	}
	return strings.ToLower(head), rest
}

// dispatchCommand runs built-in commands. It reports false for anything it
// does not recognize so trigger commands like /ai fall through to routing.
func (c *Channel) dispatchCommand(ctx context.Context, msg *telego.Message, cmd, args string) bool {
	switch cmd {
	case "/start":
		c.handleStart(ctx, msg)
	case "/help":
		c.sendPlain(ctx, msg.Chat.ID, c.helpMessage(), msg.MessageID)
	case "/about":
		c.sendPlain(ctx, msg.Chat.ID, aboutText, msg.MessageID)
	case "/reset":
		c.handleReset(ctx, msg)
	case "/td":
		c.handleThinkDeeper(ctx, msg, args)
	default:
		return false
	}
	return true
}

func (c *Channel) sendPlain(ctx context.Context, chatID int64, text string, replyTo int) {
	c.sender.Deliver(ctx, DeliveryRequest{
		ChatID:  chatID,
		Text:    text,
		Format:  FormatPlain,
		ReplyTo: replyTo,
	})
}

// handleStart greets and wipes the chat's stored history, so /start always
// begins a fresh conversation.
func (c *Channel) handleStart(ctx context.Context, msg *telego.Message) {
	c.ai.ResetHistory(ctx, msg.Chat.ID)
	c.sendPlain(ctx, msg.Chat.ID, startText, msg.MessageID)
}

// helpMessage lists the built-in commands plus the trigger commands the bot
// is actually configured with.
func (c *Channel) helpMessage() string {
	triggers := strings.Join(c.cfg.TriggerCommands, ", ")
	if triggers == "" {
		triggers = "(none configured)"
	}
	return "Commands:\n" +
		"/start - introduction, starts a fresh conversation\n" +
		"/help - this message\n" +
		"/about - what this bot does\n" +
		"/reset - forget our conversation history\n" +
		"/td <prompt> - think deeper with a slower, stronger model\n\n" +
		"In groups, prefix a message or photo caption with one of: " + triggers + "\n" +
		"or reply to one of my messages."
}

func (c *Channel) handleReset(ctx context.Context, msg *telego.Message) {
	logger.InfoCF("telegram", "History reset requested", map[string]interface{}{
		"chat_id": msg.Chat.ID,
	})
	if c.ai.ResetHistory(ctx, msg.Chat.ID) {
		c.sendPlain(ctx, msg.Chat.ID, resetDoneText, msg.MessageID)
	} else {
		c.sendPlain(ctx, msg.Chat.ID, resetFailText, msg.MessageID)
	}
}

// handleThinkDeeper answers with the slower reasoning model. A plain
// indicator message is posted first and edited into the answer when it fits
// a single message; long answers delete the indicator and go through normal
// chunked delivery.
func (c *Channel) handleThinkDeeper(ctx context.Context, msg *telego.Message, args string) {
	prompt := args
	replyTo := msg.MessageID

	// Bare /td as a reply borrows the quoted message as the prompt.
	if prompt == "" && msg.ReplyToMessage != nil {
		quoted := msg.ReplyToMessage.Text
		if quoted == "" {
			quoted = msg.ReplyToMessage.Caption
		}
		if quoted != "" {
			prompt = quoted
			replyTo = msg.ReplyToMessage.MessageID
		}
	}
	if strings.TrimSpace(prompt) == "" {
		c.sendPlain(ctx, msg.Chat.ID, tdUsageText, msg.MessageID)
		return
	}

	indicator, indErr := c.transport.Send(ctx, msg.Chat.ID, thinkingText, FormatPlain, replyTo)
	if indErr != nil {
		logger.WarnCF("telegram", "Thinking indicator not sent", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   indErr.Error(),
		})
	}

	c.transport.Typing(ctx, msg.Chat.ID)

	reply, err := c.ai.GenerateThinking(ctx, msg.Chat.ID, []gemini.Part{gemini.TextPart(prompt)}, prompt)
	if err != nil {
		c.finishThinking(ctx, msg.Chat.ID, indicator, indErr == nil, replyFailureText, FormatPlain, replyTo)
		return
	}

	balanced := markup.Balance(reply)
	if len(balanced) > telegramMaxMessageLength-chunkSafetyMargin {
		// Too long for an edit; drop the indicator and chunk normally.
		if indErr == nil {
			if derr := c.transport.Delete(ctx, indicator); derr != nil {
				logger.WarnCF("telegram", "Failed to delete thinking indicator", map[string]interface{}{
					"chat_id": msg.Chat.ID,
					"error":   derr.Error(),
				})
			}
		}
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:      msg.Chat.ID,
			Text:        reply,
			Format:      FormatMarkdown,
			ReplyTo:     replyTo,
			RawFallback: reply,
		})
		return
	}

	c.finishThinking(ctx, msg.Chat.ID, indicator, indErr == nil, reply, FormatMarkdown, replyTo)
}

// finishThinking places the final text: editing the indicator in place when
// one exists, falling back to a fresh message otherwise.
func (c *Channel) finishThinking(ctx context.Context, chatID int64, indicator MessageRef, haveIndicator bool, text string, format Format, replyTo int) {
	if !haveIndicator {
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:      chatID,
			Text:        text,
			Format:      format,
			ReplyTo:     replyTo,
			RawFallback: text,
		})
		return
	}

	body := text
	if format == FormatMarkdown {
		body = markup.Balance(text)
	}
	err := c.transport.Edit(ctx, indicator, body, format)
	if err == nil || isNotModified(err) {
		return
	}

	if errors.Is(err, ErrFormatRejected) {
		if perr := c.transport.Edit(ctx, indicator, text, FormatPlain); perr == nil {
			return
		}
	}

	logger.WarnCF("telegram", "Indicator edit failed, sending fresh message", map[string]interface{}{
		"chat_id": chatID,
		"error":   err.Error(),
	})
	c.sender.Deliver(ctx, DeliveryRequest{
		ChatID:      chatID,
		Text:        text,
		Format:      format,
		ReplyTo:     replyTo,
		RawFallback: text,
	})
}
