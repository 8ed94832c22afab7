package telegram

import (
	"sync"
	"time"

	"github.com/ilyaksco/telebot-gemini/pkg/logger"
)

// AlbumItem is one photo collected from a media group, reduced to what the
// flush pipeline needs.
type AlbumItem struct {
	FileID    string
	Caption   string
	MessageID int

	// Triggered marks the item whose message carried a trigger command or
	// replied to the bot. Its caption wins when the album's prompt is picked.
	Triggered bool
}

type albumKey struct {
	chatID  int64
	groupID string
}

type album struct {
	items    []AlbumItem
	timer    *time.Timer
	gen      int
	overflow bool
}

// AlbumBuffer collects media-group photos arriving as separate updates and
// hands the whole set to flush once the group has been quiet for the
// configured window. Every new item restarts the window.
type AlbumBuffer struct {
	mu     sync.Mutex
	albums map[albumKey]*album

	maxItems int
	quiet    time.Duration

	flush    func(chatID int64, groupID string, items []AlbumItem)
	overflow func(chatID int64, replyTo int)
}

func NewAlbumBuffer(maxItems int, quiet time.Duration, flush func(int64, string, []AlbumItem), overflow func(int64, int)) *AlbumBuffer {
	return &AlbumBuffer{
		albums:   make(map[albumKey]*album),
		maxItems: maxItems,
		quiet:    quiet,
		flush:    flush,
		overflow: overflow,
	}
}

// Add registers one photo for its media group. Duplicate message IDs are
// dropped, items beyond maxItems are dropped with a single notice per album,
// and in every case the quiet window restarts.
func (b *AlbumBuffer) Add(chatID int64, groupID string, item AlbumItem) {
	key := albumKey{chatID: chatID, groupID: groupID}
	notifyOverflow := false

	b.mu.Lock()
	a := b.albums[key]
	if a == nil {
		a = &album{}
		b.albums[key] = a
	}

	if a.contains(item.MessageID) {
		logger.DebugCF("albums", "Duplicate album item ignored", map[string]interface{}{
			"chat_id":    chatID,
			"group_id":   groupID,
			"message_id": item.MessageID,
		})
	} else if len(a.items) >= b.maxItems {
		if !a.overflow {
			a.overflow = true
			notifyOverflow = true
		}
	} else {
		a.items = append(a.items, item)
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(b.quiet, func() { b.fire(key, gen) })
	b.mu.Unlock()

	if notifyOverflow && b.overflow != nil {
		b.overflow(chatID, item.MessageID)
	}
}

// fire flushes the album if its quiet window was not restarted since this
// timer was armed. A stale timer that lost the Stop race sees a newer
// generation and does nothing.
func (b *AlbumBuffer) fire(key albumKey, gen int) {
	b.mu.Lock()
	a, ok := b.albums[key]
	if !ok || a.gen != gen {
		b.mu.Unlock()
		return
	}
	delete(b.albums, key)
	items := a.items
	b.mu.Unlock()

	if len(items) == 0 {
		return
	}

	logger.InfoCF("albums", "Album settled, flushing", map[string]interface{}{
		"chat_id":  key.chatID,
		"group_id": key.groupID,
		"items":    len(items),
	})
	b.flush(key.chatID, key.groupID, items)
}

// Pending reports how many albums are currently buffered.
func (b *AlbumBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.albums)
}

func (a *album) contains(messageID int) bool {
	for _, it := range a.items {
		if it.MessageID == messageID {
			return true
		}
	}
	return false
}

// aggregatePrompt picks the album's single text prompt: the triggered item's
// non-empty caption first, otherwise the first non-empty caption in arrival
// order, otherwise fallback.
func aggregatePrompt(items []AlbumItem, fallback string) string {
	for _, it := range items {
		if it.Triggered && it.Caption != "" {
			return it.Caption
		}
	}
	for _, it := range items {
		if it.Caption != "" {
			return it.Caption
		}
	}
	return fallback
}
