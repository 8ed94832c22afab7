// Package gemini talks to Google Gemini through its OpenAI-compatible chat
// completions endpoint and weaves stored chat history into every request.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ilyaksco/telebot-gemini/pkg/config"
	"github.com/ilyaksco/telebot-gemini/pkg/history"
	"github.com/ilyaksco/telebot-gemini/pkg/logger"
)

// Part is one unit of prompt content: either text or inline binary data with
// a MIME type (images).
type Part struct {
	Text string
	Data []byte
	MIME string
}

func TextPart(text string) Part { return Part{Text: text} }

func ImagePart(data []byte, mime string) Part { return Part{Data: data, MIME: mime} }

type Client struct {
	oai           openai.Client
	model         string
	thinkingModel string
	history       history.Store
	historyLimit  int
}

func NewClient(cfg config.Gemini, hist history.Store, historyLimit int) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.APIBase),
		option.WithRequestTimeout(timeout),
	)

	thinkingModel := cfg.ThinkingModel
	if thinkingModel == "" {
		thinkingModel = cfg.Model
	}

	return &Client{
		oai:           client,
		model:         cfg.Model,
		thinkingModel: thinkingModel,
		history:       hist,
		historyLimit:  historyLimit,
	}
}

// Generate sends one multimodal request for the chat and returns the model's
// text. historyText is the text recorded as the user turn; pass "" to keep
// this exchange out of history.
func (c *Client) Generate(ctx context.Context, chatID int64, parts []Part, historyText string) (string, error) {
	return c.generate(ctx, c.model, chatID, parts, historyText)
}

// GenerateThinking is Generate on the slower, deeper-reasoning model.
func (c *Client) GenerateThinking(ctx context.Context, chatID int64, parts []Part, historyText string) (string, error) {
	return c.generate(ctx, c.thinkingModel, chatID, parts, historyText)
}

func (c *Client) generate(ctx context.Context, model string, chatID int64, parts []Part, historyText string) (string, error) {
	requestID := uuid.NewString()

	messages := c.buildMessages(ctx, chatID, parts)
	if len(messages) == 0 {
		return "", fmt.Errorf("no prompt content to send")
	}

	logger.DebugCF("gemini", "Sending request", map[string]interface{}{
		"request_id": requestID,
		"chat_id":    chatID,
		"model":      model,
		"messages":   len(messages),
		"parts":      len(parts),
	})

	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		logger.ErrorCF("gemini", "Request failed", map[string]interface{}{
			"request_id": requestID,
			"chat_id":    chatID,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("gemini request: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		logger.WarnCF("gemini", "Empty response", map[string]interface{}{
			"request_id": requestID,
			"chat_id":    chatID,
		})
		return "", fmt.Errorf("gemini returned no usable content")
	}

	reply := resp.Choices[0].Message.Content

	if historyText != "" {
		c.history.AppendTurn(ctx, chatID, "user", historyText)
		c.history.AppendTurn(ctx, chatID, "model", reply)
	}

	logger.InfoCF("gemini", "Response received", map[string]interface{}{
		"request_id": requestID,
		"chat_id":    chatID,
		"length":     len(reply),
	})
	return reply, nil
}

// buildMessages assembles prior turns plus the current multimodal user
// message.
func (c *Client) buildMessages(ctx context.Context, chatID int64, parts []Part) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	for _, turn := range c.history.ReadTurns(ctx, chatID, c.historyLimit) {
		if turn.Role == "model" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	current := buildUserMessage(parts)
	if current == nil {
		return messages
	}
	return append(messages, *current)
}

func buildUserMessage(parts []Part) *openai.ChatCompletionMessageParamUnion {
	hasImage := false
	for _, p := range parts {
		if len(p.Data) > 0 {
			hasImage = true
			break
		}
	}

	if !hasImage {
		text := ""
		for _, p := range parts {
			if p.Text != "" {
				if text != "" {
					text += "\n"
				}
				text += p.Text
			}
		}
		if text == "" {
			return nil
		}
		msg := openai.UserMessage(text)
		return &msg
	}

	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch {
		case len(p.Data) > 0:
			mime := p.MIME
			if mime == "" {
				mime = "image/jpeg"
			}
			dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(p.Data))
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL,
			}))
		case p.Text != "":
			content = append(content, openai.TextContentPart(p.Text))
		}
	}
	if len(content) == 0 {
		return nil
	}
	msg := openai.UserMessage(content)
	return &msg
}

// ResetHistory wipes the stored conversation for the chat.
func (c *Client) ResetHistory(ctx context.Context, chatID int64) bool {
	return c.history.Reset(ctx, chatID)
}
