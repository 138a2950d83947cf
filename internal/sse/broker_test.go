package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeAttachmentCreated, Data: map[string]string{"key": "K1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: attachment.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"key":"K1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishChange_CatalogThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger catalog.updated.
	b.PublishChange("attachment", "created", "K1")
	// Second event immediately should NOT trigger another catalog.updated.
	b.PublishChange("document", "updated", "b.org")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	catalogCount := 0
	changeCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, TypeCatalogUpdated) {
				catalogCount++
			} else {
				changeCount++
			}
		default:
			break loop
		}
	}

	if changeCount != 2 {
		t.Errorf("change events = %d, want 2", changeCount)
	}
	if catalogCount != 1 {
		t.Errorf("catalog events = %d, want 1 (throttled)", catalogCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeDocumentUpdated, Data: map[string]string{"path": "x.org"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: document.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Overflowing the client buffer must not block the broker.
	for i := 0; i < cap(ch)+10; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeDocumentUpdated, Data: map[string]string{"path": "x.org"}})
	b.PublishChange("document", "updated", "x.org")
}

func TestPublishChange_PayloadAndUnknownKinds(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChange("attachment", "renamed", "K0")
	b.PublishChange("document", "deleted", "gone.org")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: document.deleted") || !strings.Contains(s, `"path":"gone.org"`) {
			t.Errorf("unexpected first message %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestSubscribeAfter_ReplaysMissedChanges(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	b.PublishChange("attachment", "created", "K1")
	b.PublishChange("attachment", "created", "K2")
	b.PublishChange("document", "updated", "a.org")
	b.Publish(Event{Type: "note", Data: map[string]string{}})
	time.Sleep(20 * time.Millisecond)

	// Unnumbered events are never replayed.
	ch := b.SubscribeAfter(1)
	defer b.Unsubscribe(ch)

	got := drain(ch)
	if len(got) != 2 {
		t.Fatalf("replayed %d events, want 2: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], "id: 2\n") || !strings.Contains(got[0], `"key":"K2"`) {
		t.Errorf("first replay = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "id: 3\n") || !strings.Contains(got[1], "event: document.updated") {
		t.Errorf("second replay = %q", got[1])
	}

	b.PublishChange("attachment", "deleted", "K1")
	live := drain(ch)
	if len(live) != 1 || !strings.HasPrefix(live[0], "id: 4\n") {
		t.Errorf("live events = %q", live)
	}
}

func TestSubscribe_NoReplay(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	b.PublishChange("attachment", "created", "K1")
	time.Sleep(20 * time.Millisecond)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	if got := drain(ch); len(got) != 0 {
		t.Errorf("fresh subscriber received %q", got)
	}
}

func TestSubscribeAfter_HistoryIsBounded(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	for i := 0; i < historySize+20; i++ {
		b.PublishChange("document", "updated", "a.org")
	}
	time.Sleep(50 * time.Millisecond)

	ch := b.SubscribeAfter(0)
	defer b.Unsubscribe(ch)

	got := drain(ch)
	if len(got) != historySize {
		t.Fatalf("replayed %d events, want %d", len(got), historySize)
	}
	if !strings.HasPrefix(got[0], "id: 21\n") {
		t.Errorf("oldest replayed event = %q", got[0])
	}
}

func TestSSEHandler_LastEventID(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	b.PublishChange("attachment", "created", "K1")
	b.PublishChange("attachment", "created", "K2")
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("missing retry hint: %q", body)
	}
	if strings.Contains(body, `"key":"K1"`) {
		t.Errorf("acknowledged event replayed: %q", body)
	}
	if !strings.Contains(body, "id: 2\nevent: attachment.created") {
		t.Errorf("missed event not replayed: %q", body)
	}
}

func TestSSEHandler_KeepAlive(t *testing.T) {
	b := NewBroker(time.Hour)
	b.keepAlive = 10 * time.Millisecond
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), ": keep-alive\n\n") {
		t.Errorf("no keep-alive comment in %q", w.Body.String())
	}
}

func TestLastEventID(t *testing.T) {
	for _, tc := range []struct {
		header, query string
		want          uint64
		ok            bool
	}{
		{header: "7", want: 7, ok: true},
		{query: "9", want: 9, ok: true},
		{header: "3", query: "9", want: 3, ok: true},
		{header: "abc"},
		{},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/events?lastEventId="+tc.query, nil)
		if tc.header != "" {
			req.Header.Set("Last-Event-ID", tc.header)
		}
		got, ok := lastEventID(req)
		if got != tc.want || ok != tc.ok {
			t.Errorf("lastEventID(%q, %q) = %d, %v; want %d, %v", tc.header, tc.query, got, ok, tc.want, tc.ok)
		}
	}
}
