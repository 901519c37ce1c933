package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects whatever is buffered on ch after a short settle.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestClientCount(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d after unsubscribe", n)
	}
}

func TestArticleEventFrame(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishArticleEvent("created", "go/intro.html")

	msg := receive(t, ch)
	want := "id: 1\nevent: article.created\ndata: {\"path\":\"go/intro.html\"}\n\n"
	if msg != want {
		t.Errorf("frame = %q, want %q", msg, want)
	}
	if msg := receive(t, ch); !strings.Contains(msg, "event: "+TypeIndexUpdated) {
		t.Errorf("expected index.updated after an article event, got %q", msg)
	}
}

func TestUnknownArticleKindIgnored(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishArticleEvent("renamed", "a.html")
	if got := drain(ch); len(got) != 0 {
		t.Errorf("got %q", got)
	}
}

func TestIndexUpdatedThrottled(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishArticleEvent("created", "a.html")
	b.PublishArticleEvent("updated", "b.html")
	b.PublishArticleEvent("deleted", "a.html")

	var articles, index int
	for _, msg := range drain(ch) {
		if strings.Contains(msg, TypeIndexUpdated) {
			index++
		} else {
			articles++
		}
	}
	if articles != 3 || index != 1 {
		t.Errorf("articles = %d, index = %d; want 3 and 1", articles, index)
	}
}

func TestCategoryChangeSkipsIndexUpdate(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishCategoryChange()

	got := drain(ch)
	if len(got) != 1 || !strings.Contains(got[0], "event: "+TypeCategoryChanged) {
		t.Errorf("got %q", got)
	}
}

func TestSubscribeAfterReplaysMissedEvents(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	// Frames 1..3: article.created, index.updated, category.changed.
	b.PublishArticleEvent("created", "a.html")
	b.PublishCategoryChange()
	b.PublishArticleEvent("updated", "a.html") // frame 4
	time.Sleep(50 * time.Millisecond)

	ch := b.SubscribeAfter(2)
	defer b.Unsubscribe(ch)
	got := drain(ch)
	if len(got) != 2 {
		t.Fatalf("replayed %d frames, want 2: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], "id: 3\nevent: category.changed") {
		t.Errorf("first replayed frame = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "id: 4\nevent: article.updated") {
		t.Errorf("second replayed frame = %q", got[1])
	}
}

func TestHistoryIsBounded(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	for range historySize + 10 {
		b.PublishCategoryChange()
	}
	time.Sleep(50 * time.Millisecond)

	ch := b.SubscribeAfter(1)
	defer b.Unsubscribe(ch)
	got := drain(ch)
	if len(got) != clientBuffer {
		t.Errorf("replayed %d frames, want the client buffer (%d)", len(got), clientBuffer)
	}
	if !strings.HasPrefix(got[0], "id: 11\n") {
		t.Errorf("oldest retained frame = %q", got[0])
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for range clientBuffer + 10 {
		b.PublishCategoryChange()
	}
	if n := b.ClientCount(); n != 1 {
		t.Errorf("clients = %d", n)
	}
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	b.PublishCategoryChange() // id 1, before the client connects

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "0")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}

	b.PublishArticleEvent("updated", "x.html")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if strings.Contains(body, "category.changed") {
		t.Error("event before connect was replayed without a Last-Event-ID")
	}
	if !strings.Contains(body, "id: 2\nevent: article.updated") {
		t.Errorf("body = %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("client not removed after disconnect")
	}
}

func TestServeHTTPResume(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	b.PublishArticleEvent("deleted", "gone.html")
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "article.deleted") || !strings.Contains(body, "id: 2\nevent: index.updated") {
		t.Errorf("body = %q", body)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d after close", n)
	}

	// No-ops once closed.
	b.Publish(Event{Type: TypeArticleUpdated})
	b.PublishArticleEvent("updated", "x.html")
	b.PublishCategoryChange()
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close returned an open channel")
	}
	b.Close()
}
