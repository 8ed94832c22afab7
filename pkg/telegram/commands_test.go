package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/ilyaksco/telebot-gemini/pkg/config"
	"github.com/ilyaksco/telebot-gemini/pkg/gemini"
	"github.com/ilyaksco/telebot-gemini/pkg/history"
)

// recordingStore tracks history resets so command handlers can be tested
// without a database.
type recordingStore struct {
	resets []int64
}

func (s *recordingStore) AppendTurn(context.Context, int64, string, string) bool { return true }
func (s *recordingStore) ReadTurns(context.Context, int64, int) []history.Turn   { return nil }
func (s *recordingStore) Close() error                                           { return nil }

func (s *recordingStore) Reset(_ context.Context, chatID int64) bool {
	s.resets = append(s.resets, chatID)
	return true
}

func newTestChannel(ft *fakeTransport, store history.Store) *Channel {
	cfg := config.Telegram{
		TriggerCommands:    []string{"/ai", "/bot"},
		DefaultImagePrompt: "Describe this image.",
	}
	return &Channel{
		cfg:       cfg,
		ai:        gemini.NewClient(config.Gemini{Model: "test-model"}, store, 5),
		transport: ft,
		sender:    newTestSender(ft),
	}
}

func testMessage(chatID int64, messageID int) *telego.Message {
	return &telego.Message{
		MessageID: messageID,
		Chat:      telego.Chat{ID: chatID, Type: "private"},
		From:      &telego.User{ID: 7},
	}
}

func TestStartResetsHistoryAndGreets(t *testing.T) {
	ft := &fakeTransport{}
	store := &recordingStore{}
	ch := newTestChannel(ft, store)

	if !ch.dispatchCommand(context.Background(), testMessage(9, 3), "/start", "") {
		t.Fatal("/start not recognized")
	}

	if len(store.resets) != 1 || store.resets[0] != 9 {
		t.Errorf("history resets = %v, want [9]", store.resets)
	}
	if len(ft.sent) != 1 || ft.sent[0].Text != startText {
		t.Errorf("greeting not sent: %+v", ft.sent)
	}
}

func TestResetClearsHistory(t *testing.T) {
	ft := &fakeTransport{}
	store := &recordingStore{}
	ch := newTestChannel(ft, store)

	ch.dispatchCommand(context.Background(), testMessage(5, 1), "/reset", "")

	if len(store.resets) != 1 || store.resets[0] != 5 {
		t.Errorf("history resets = %v, want [5]", store.resets)
	}
	if len(ft.sent) != 1 || ft.sent[0].Text != resetDoneText {
		t.Errorf("confirmation not sent: %+v", ft.sent)
	}
}

func TestHelpListsConfiguredTriggers(t *testing.T) {
	ft := &fakeTransport{}
	ch := newTestChannel(ft, &recordingStore{})

	ch.dispatchCommand(context.Background(), testMessage(1, 1), "/help", "")

	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ft.sent))
	}
	for _, trigger := range ch.cfg.TriggerCommands {
		if !strings.Contains(ft.sent[0].Text, trigger) {
			t.Errorf("help text missing trigger %q: %q", trigger, ft.sent[0].Text)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		cmd  string
		args string
	}{
		{name: "bare command", text: "/help", cmd: "/help"},
		{name: "command with args", text: "/td explain monads", cmd: "/td", args: "explain monads"},
		{name: "command uppercased", text: "/TD hi", cmd: "/td", args: "hi"},
		{name: "addressed to this bot", text: "/reset@mybot", cmd: "/reset"},
		{name: "addressed to other bot", text: "/reset@otherbot"},
		{name: "args after newline", text: "/td\nmultiline prompt", cmd: "/td", args: "multiline prompt"},
		{name: "not a command", text: "hello /td"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := parseCommand(tt.text, "mybot")
			if cmd != tt.cmd || args != tt.args {
				t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)", tt.text, cmd, args, tt.cmd, tt.args)
			}
		})
	}
}
