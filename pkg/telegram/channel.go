// Package telegram runs the bot: long polling, routing, album buffering,
// and chunked delivery of model replies.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/ilyaksco/telebot-gemini/pkg/config"
	"github.com/ilyaksco/telebot-gemini/pkg/gemini"
	"github.com/ilyaksco/telebot-gemini/pkg/logger"
)

const photoMaxBytes int64 = 20 * 1024 * 1024 // Bot API file download cap

const (
	replyFailureText   = "Sorry, I ran into a problem answering that. Please try again."
	photoFetchFailText = "Sorry, I couldn't download those photos. Please try sending them again."
	triggerHintText    = "Send me a prompt after the command and I'll answer it."
)

type Channel struct {
	bot       *telego.Bot
	cfg       config.Telegram
	ai        *gemini.Client
	transport Transport
	sender    *Sender
	albums    *AlbumBuffer
	http      *http.Client

	// runCtx is the polling context; album timers fire outside any update
	// handler and inherit it.
	runCtx context.Context
}

func NewChannel(cfg config.Telegram, ai *gemini.Client) (*Channel, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	transport := newBotTransport(bot)
	c := &Channel{
		bot:       bot,
		cfg:       cfg,
		ai:        ai,
		transport: transport,
		sender:    NewSender(transport),
		http:      &http.Client{Timeout: 60 * time.Second},
	}

	quiet := time.Duration(cfg.AlbumQuietSeconds * float64(time.Second))
	c.albums = NewAlbumBuffer(cfg.MaxAlbumImages, quiet, c.processAlbum, c.notifyAlbumOverflow)
	return c, nil
}

func (c *Channel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")
	c.runCtx = ctx

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				logger.InfoC("telegram", "Updates channel closed")
				return nil
			}
			if update.Message != nil {
				c.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil {
		return
	}

	if cmd, args := parseCommand(msg.Text, c.bot.Username()); cmd != "" {
		if c.dispatchCommand(ctx, msg, cmd, args) {
			return
		}
	}

	if len(msg.Photo) > 0 {
		c.handlePhoto(ctx, msg)
		return
	}
	if msg.Text != "" {
		c.handleText(ctx, msg)
	}
}

func (c *Channel) handleText(ctx context.Context, msg *telego.Message) {
	decision := decideText(msg.Chat.Type, msg.Text, c.isReplyToBot(msg), c.cfg.TriggerCommands)
	if !decision.Respond {
		return
	}

	prompt := strings.TrimSpace(decision.Prompt)
	if prompt == "" {
		if decision.Trigger != "" {
			// Bare trigger with nothing to answer, nudge instead of calling
			// the model with an empty prompt.
			c.sender.Deliver(ctx, DeliveryRequest{
				ChatID:  msg.Chat.ID,
				Text:    triggerHintText,
				Format:  FormatPlain,
				ReplyTo: msg.MessageID,
			})
		}
		return
	}

	logger.InfoCF("telegram", "Text message accepted", map[string]interface{}{
		"chat_id":   msg.Chat.ID,
		"chat_type": msg.Chat.Type,
		"trigger":   decision.Trigger,
	})

	c.transport.Typing(ctx, msg.Chat.ID)

	reply, err := c.ai.Generate(ctx, msg.Chat.ID, []gemini.Part{gemini.TextPart(prompt)}, prompt)
	if err != nil {
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:  msg.Chat.ID,
			Text:    replyFailureText,
			Format:  FormatPlain,
			ReplyTo: msg.MessageID,
		})
		return
	}

	c.sender.Deliver(ctx, DeliveryRequest{
		ChatID:      msg.Chat.ID,
		Text:        reply,
		Format:      FormatMarkdown,
		ReplyTo:     msg.MessageID,
		RawFallback: reply,
	})
}

func (c *Channel) handlePhoto(ctx context.Context, msg *telego.Message) {
	if !c.cfg.ImageUnderstanding {
		return
	}

	replyToBot := c.isReplyToBot(msg)
	decision := decideCaption(msg.Chat.Type, msg.Caption, replyToBot, c.cfg.TriggerCommands)
	if !decision.Respond {
		return
	}

	// Largest size is last in the Bot API photo array.
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" {
		c.albums.Add(msg.Chat.ID, msg.MediaGroupID, AlbumItem{
			FileID:    fileID,
			Caption:   strings.TrimSpace(decision.Prompt),
			MessageID: msg.MessageID,
			Triggered: decision.Trigger != "" || replyToBot,
		})
		return
	}

	c.processSinglePhoto(ctx, msg, fileID, strings.TrimSpace(decision.Prompt))
}

func (c *Channel) processSinglePhoto(ctx context.Context, msg *telego.Message, fileID, prompt string) {
	if prompt == "" {
		prompt = c.cfg.DefaultImagePrompt
	}

	c.transport.Typing(ctx, msg.Chat.ID)

	data, err := c.fetchPhoto(ctx, fileID)
	if err != nil {
		logger.ErrorCF("telegram", "Photo download failed", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   err.Error(),
		})
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:  msg.Chat.ID,
			Text:    photoFetchFailText,
			Format:  FormatPlain,
			ReplyTo: msg.MessageID,
		})
		return
	}

	parts := []gemini.Part{gemini.TextPart(prompt), gemini.ImagePart(data, "image/jpeg")}
	reply, err := c.ai.Generate(ctx, msg.Chat.ID, parts, prompt)
	if err != nil {
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:  msg.Chat.ID,
			Text:    replyFailureText,
			Format:  FormatPlain,
			ReplyTo: msg.MessageID,
		})
		return
	}

	c.sender.Deliver(ctx, DeliveryRequest{
		ChatID:      msg.Chat.ID,
		Text:        reply,
		Format:      FormatMarkdown,
		ReplyTo:     msg.MessageID,
		RawFallback: reply,
	})
}

// processAlbum is the flush callback for settled media groups. It runs on a
// timer goroutine under the polling context.
func (c *Channel) processAlbum(chatID int64, groupID string, items []AlbumItem) {
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	replyTo := items[0].MessageID
	prompt := aggregatePrompt(items, c.cfg.DefaultImagePrompt)

	c.transport.Typing(ctx, chatID)

	parts := []gemini.Part{gemini.TextPart(prompt)}
	fetched := 0
	for _, item := range items {
		data, err := c.fetchPhoto(ctx, item.FileID)
		if err != nil {
			logger.WarnCF("telegram", "Album photo download failed, skipping", map[string]interface{}{
				"chat_id":    chatID,
				"group_id":   groupID,
				"message_id": item.MessageID,
				"error":      err.Error(),
			})
			continue
		}
		parts = append(parts, gemini.ImagePart(data, "image/jpeg"))
		fetched++
	}

	if fetched == 0 {
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:  chatID,
			Text:    photoFetchFailText,
			Format:  FormatPlain,
			ReplyTo: replyTo,
		})
		return
	}

	logger.InfoCF("telegram", "Album ready for model", map[string]interface{}{
		"chat_id":  chatID,
		"group_id": groupID,
		"photos":   fetched,
	})

	reply, err := c.ai.Generate(ctx, chatID, parts, prompt)
	if err != nil {
		c.sender.Deliver(ctx, DeliveryRequest{
			ChatID:  chatID,
			Text:    replyFailureText,
			Format:  FormatPlain,
			ReplyTo: replyTo,
		})
		return
	}

	c.sender.Deliver(ctx, DeliveryRequest{
		ChatID:      chatID,
		Text:        reply,
		Format:      FormatMarkdown,
		ReplyTo:     replyTo,
		RawFallback: reply,
	})
}

func (c *Channel) notifyAlbumOverflow(chatID int64, replyTo int) {
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	notice := fmt.Sprintf("I can only look at the first %d photos of an album; the rest will be ignored.", c.cfg.MaxAlbumImages)
	if _, err := c.transport.Send(ctx, chatID, notice, FormatPlain, replyTo); err != nil {
		logger.WarnCF("telegram", "Overflow notice not delivered", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

func (c *Channel) fetchPhoto(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file %s has no download path", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, photoMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	if int64(len(data)) > photoMaxBytes {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, photoMaxBytes)
	}
	return data, nil
}

func (c *Channel) isReplyToBot(msg *telego.Message) bool {
	return msg.ReplyToMessage != nil &&
		msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.Username == c.bot.Username()
}
