package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"defendend-backend/internal/config"
	"defendend-backend/internal/model"
)

func collect(t *testing.T, events <-chan GenerationEvent) []GenerationEvent {
	t.Helper()
	var got []GenerationEvent
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func sseHandler(t *testing.T, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}
}

func newDeepSeekStream(t *testing.T, handler http.HandlerFunc) (<-chan GenerationEvent, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewDeepSeekClient(config.DeepSeekConfig{APIKey: "test-key", BaseURL: srv.URL})
	return client.DispatchStream(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "hi"},
	}, model.GenerationParams{})
}

func TestDeepSeekStreamDeltasThenDone(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo "}}]}`,
		`data: this is not json at all`,
		`data: {"choices":[{"delta":{"content":"world"}}]}`,
		`data: [DONE]`,
		"",
	}, "\n\n")

	events, err := newDeepSeekStream(t, sseHandler(t, body))
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	got := collect(t, events)
	want := []GenerationEvent{
		{Type: EventDelta, Text: "Hel"},
		{Type: EventDelta, Text: "lo "},
		{Type: EventDelta, Text: "world"},
		{Type: EventDone},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDeepSeekStreamDiscardsBytesAfterDone(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ghost\"}}]}\n\n"

	events, err := newDeepSeekStream(t, sseHandler(t, body))
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events %v, want 2", len(got), got)
	}
	if got[0] != (GenerationEvent{Type: EventDelta, Text: "x"}) {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != EventDone {
		t.Errorf("last event = %+v, want Done", got[1])
	}
}

func TestDeepSeekStreamDoneOnCleanEOF(t *testing.T) {
	// 上游没发 [DONE] 就关了连接
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"

	events, err := newDeepSeekStream(t, sseHandler(t, body))
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 || got[1].Type != EventDone {
		t.Fatalf("got %v, want [Delta Done]", got)
	}
}

func TestDeepSeekStreamErrorStatus(t *testing.T) {
	events, err := newDeepSeekStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	})
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events %v, want exactly one error", len(got), got)
	}
	if got[0].Type != EventError {
		t.Errorf("event type = %v, want Error", got[0].Type)
	}
	if !strings.Contains(got[0].Text, "429") {
		t.Errorf("error text %q should carry the upstream status", got[0].Text)
	}
}

func TestDeepSeekStreamMissingAPIKey(t *testing.T) {
	client := NewDeepSeekClient(config.DeepSeekConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.DispatchStream(context.Background(), nil, model.GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), ErrMissingAPIKey.Error()) {
		t.Fatalf("expected missing api key error before any network call, got %v", err)
	}
}

func TestClaudeStreamDialect(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"message_start","message":{}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Bon"}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"jour"}}`,
		`data: {"type":"message_delta","delta":{}}`,
		`data: {"type":"message_stop"}`,
		"",
	}, "\n\n")

	srv := httptest.NewServer(sseHandler(t, body))
	t.Cleanup(srv.Close)

	client := NewClaudeClient(config.ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL})
	events, err := client.DispatchStream(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "salut"},
	}, model.GenerationParams{})
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	got := collect(t, events)
	want := []GenerationEvent{
		{Type: EventDelta, Text: "Bon"},
		{Type: EventDelta, Text: "jour"},
		{Type: EventDone},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStreamTerminatesAfterContextCancel(t *testing.T) {
	// 远超通道缓冲的增量帧，保证取消时消费协程正卡在通道发送上
	var body strings.Builder
	for i := 0; i < 200; i++ {
		body.WriteString("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
	}
	body.WriteString("data: [DONE]\n\n")

	srv := httptest.NewServer(sseHandler(t, body.String()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewDeepSeekClient(config.DeepSeekConfig{APIKey: "test-key", BaseURL: srv.URL})
	events, err := client.DispatchStream(ctx, nil, model.GenerationParams{})
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	// 只读一个事件就放弃，消费协程必须随 ctx 取消而退出并关闭通道
	<-events
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel not closed after context cancel; consumer goroutine leaked")
		}
	}
}

func TestStreamHandlesSplitLinesAcrossReads(t *testing.T) {
	// 一条 data 行跨两次写入，确保半行留在缓冲里
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"con")
		flusher.Flush()
		io.WriteString(w, "tent\":\"joined\"}}]}\n\ndata: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	client := NewDeepSeekClient(config.DeepSeekConfig{APIKey: "test-key", BaseURL: srv.URL})
	events, err := client.DispatchStream(context.Background(), nil, model.GenerationParams{})
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 || got[0].Text != "joined" || got[1].Type != EventDone {
		t.Fatalf("got %v, want [Delta(joined) Done]", got)
	}
}
