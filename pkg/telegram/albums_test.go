package telegram

import (
	"sync"
	"testing"
	"time"
)

type albumFlushRecorder struct {
	mu      sync.Mutex
	flushes [][]AlbumItem
	done    chan struct{}
}

func newAlbumFlushRecorder() *albumFlushRecorder {
	return &albumFlushRecorder{done: make(chan struct{}, 8)}
}

func (r *albumFlushRecorder) flush(_ int64, _ string, items []AlbumItem) {
	r.mu.Lock()
	r.flushes = append(r.flushes, items)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *albumFlushRecorder) wait(t *testing.T) []AlbumItem {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("album never flushed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes[len(r.flushes)-1]
}

func (r *albumFlushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

func TestAlbumBufferFlushesAfterQuietWindow(t *testing.T) {
	rec := newAlbumFlushRecorder()
	buf := NewAlbumBuffer(5, 30*time.Millisecond, rec.flush, nil)

	buf.Add(1, "g1", AlbumItem{FileID: "a", MessageID: 10})
	buf.Add(1, "g1", AlbumItem{FileID: "b", MessageID: 11})
	buf.Add(1, "g1", AlbumItem{FileID: "c", MessageID: 12})

	items := rec.wait(t)
	if len(items) != 3 {
		t.Fatalf("flushed %d items, want 3", len(items))
	}
	if items[0].FileID != "a" || items[2].FileID != "c" {
		t.Errorf("arrival order not preserved: %+v", items)
	}
	if buf.Pending() != 0 {
		t.Errorf("album still buffered after flush")
	}
}

func TestAlbumBufferRestartsWindowOnEachItem(t *testing.T) {
	rec := newAlbumFlushRecorder()
	buf := NewAlbumBuffer(5, 60*time.Millisecond, rec.flush, nil)

	buf.Add(1, "g1", AlbumItem{FileID: "a", MessageID: 10})
	// Keep feeding items inside the window; no flush may happen in between.
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		if rec.count() != 0 {
			t.Fatal("flushed while items were still arriving")
		}
		buf.Add(1, "g1", AlbumItem{FileID: "x", MessageID: 11 + i})
	}

	items := rec.wait(t)
	if len(items) != 4 {
		t.Errorf("flushed %d items, want 4", len(items))
	}
	if rec.count() != 1 {
		t.Errorf("expected exactly one flush, got %d", rec.count())
	}
}

func TestAlbumBufferDedupesByMessageID(t *testing.T) {
	rec := newAlbumFlushRecorder()
	buf := NewAlbumBuffer(5, 20*time.Millisecond, rec.flush, nil)

	buf.Add(1, "g1", AlbumItem{FileID: "a", MessageID: 10})
	buf.Add(1, "g1", AlbumItem{FileID: "a", MessageID: 10})
	buf.Add(1, "g1", AlbumItem{FileID: "b", MessageID: 11})

	items := rec.wait(t)
	if len(items) != 2 {
		t.Errorf("flushed %d items, want 2 after dedupe", len(items))
	}
}

func TestAlbumBufferOverflowNoticeOnce(t *testing.T) {
	rec := newAlbumFlushRecorder()
	notices := 0
	buf := NewAlbumBuffer(2, 20*time.Millisecond, rec.flush, func(int64, int) { notices++ })

	for i := 0; i < 5; i++ {
		buf.Add(1, "g1", AlbumItem{FileID: "f", MessageID: 10 + i})
	}

	items := rec.wait(t)
	if len(items) != 2 {
		t.Errorf("flushed %d items, want maxItems=2", len(items))
	}
	if notices != 1 {
		t.Errorf("overflow notice fired %d times, want 1", notices)
	}
}

func TestAlbumBufferSeparatesGroupsAndChats(t *testing.T) {
	rec := newAlbumFlushRecorder()
	buf := NewAlbumBuffer(5, 20*time.Millisecond, rec.flush, nil)

	buf.Add(1, "g1", AlbumItem{FileID: "a", MessageID: 10})
	buf.Add(1, "g2", AlbumItem{FileID: "b", MessageID: 10})
	buf.Add(2, "g1", AlbumItem{FileID: "c", MessageID: 10})

	for i := 0; i < 3; i++ {
		rec.wait(t)
	}
	if rec.count() != 3 {
		t.Errorf("expected 3 independent flushes, got %d", rec.count())
	}
}

func TestAggregatePromptPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		items []AlbumItem
		want  string
	}{
		{
			name: "triggered caption wins over earlier captions",
			items: []AlbumItem{
				{Caption: "first caption"},
				{Caption: "describe these", Triggered: true},
			},
			want: "describe these",
		},
		{
			name: "first non-empty caption when nothing triggered",
			items: []AlbumItem{
				{},
				{Caption: "second has text"},
				{Caption: "third has text"},
			},
			want: "second has text",
		},
		{
			name: "triggered item with empty caption falls back to caption scan",
			items: []AlbumItem{
				{Caption: "stray caption"},
				{Triggered: true},
			},
			want: "stray caption",
		},
		{
			name:  "all empty falls back to default",
			items: []AlbumItem{{}, {}},
			want:  "default prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregatePrompt(tt.items, "default prompt"); got != tt.want {
				t.Errorf("aggregatePrompt = %q, want %q", got, tt.want)
			}
		})
	}
}
