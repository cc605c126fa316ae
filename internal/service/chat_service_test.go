package service

import (
	"context"
	"errors"
	"testing"

	"defendend-backend/internal/model"
	"defendend-backend/internal/provider"
	"defendend-backend/internal/storage"
)

// fakeClient 可编程的提供方适配器
type fakeClient struct {
	name     string
	reply    string
	err      error
	events   []provider.GenerationEvent
	captured []model.Message
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Dispatch(ctx context.Context, messages []model.Message, params model.GenerationParams) (string, error) {
	f.captured = messages
	return f.reply, f.err
}

func (f *fakeClient) DispatchStream(ctx context.Context, messages []model.Message, params model.GenerationParams) (<-chan provider.GenerationEvent, error) {
	f.captured = messages
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan provider.GenerationEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestService(t *testing.T, client *fakeClient) (*ChatService, storage.Storage, *model.User, *model.Chat) {
	t.Helper()

	store := storage.NewMemoryStorage()
	user := &model.User{ID: "u-1", Email: "a@defendend.dev", Providers: []string{client.name}, DailyQuota: 100}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	svc := NewChatService(store, provider.NewCoordinator(client))
	chat, err := svc.CreateChat(user, "test chat", client.name, nil)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	return svc, store, user, chat
}

func TestSendMessagePersistsBothSides(t *testing.T) {
	client := &fakeClient{name: "claude", reply: "hello from the model"}
	svc, store, user, chat := newTestService(t, client)

	result, err := svc.SendMessage(context.Background(), user, chat.ID, "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("result has %d messages, want 2", len(result))
	}
	if result[0].Role != model.RoleUser || result[0].Content != "hello" {
		t.Errorf("first message = %+v, want the user turn", result[0])
	}
	if result[1].Role != model.RoleAssistant || result[1].Content != "hello from the model" {
		t.Errorf("second message = %+v, want the assistant turn", result[1])
	}

	stored, err := store.LoadMessages(chat.ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored))
	}

	// 派发给提供方的上下文必须已包含本轮用户消息
	if len(client.captured) != 1 || client.captured[0].Content != "hello" {
		t.Errorf("dispatched context = %+v", client.captured)
	}
}

func TestSendMessageKeepsUserTurnOnProviderFailure(t *testing.T) {
	client := &fakeClient{name: "claude", err: errors.New("boom")}
	svc, store, user, chat := newTestService(t, client)

	if _, err := svc.SendMessage(context.Background(), user, chat.ID, "hello", nil); err == nil {
		t.Fatal("expected provider error to surface")
	}

	// 用户消息在派发前已落库，失败也要保留
	stored, _ := store.LoadMessages(chat.ID)
	if len(stored) != 1 || stored[0].Role != model.RoleUser {
		t.Fatalf("stored = %+v, want just the user turn", stored)
	}
}

func TestSendMessageUnknownChat(t *testing.T) {
	client := &fakeClient{name: "claude", reply: "x"}
	svc, _, user, _ := newTestService(t, client)

	_, err := svc.SendMessage(context.Background(), user, "no-such-chat", "hello", nil)
	if !errors.Is(err, storage.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestChatOwnershipIsEnforced(t *testing.T) {
	client := &fakeClient{name: "claude", reply: "x"}
	svc, store, _, chat := newTestService(t, client)

	intruder := &model.User{ID: "u-2", Email: "b@defendend.dev", Providers: []string{"claude"}}
	if err := store.CreateUser(intruder); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// 他人的会话表现为不存在
	if _, err := svc.GetChat(intruder, chat.ID); !errors.Is(err, storage.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), intruder, chat.ID, "hi", nil); !errors.Is(err, storage.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestProviderAccessIsEnforced(t *testing.T) {
	client := &fakeClient{name: "claude", reply: "x"}
	svc, store, user, chat := newTestService(t, client)

	// 管理员收回了 claude 权限
	user.Providers = []string{"deepseek"}
	if err := store.UpdateUser(user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if _, err := svc.SendMessage(context.Background(), user, chat.ID, "hi", nil); !errors.Is(err, ErrProviderForbidden) {
		t.Fatalf("expected ErrProviderForbidden, got %v", err)
	}
	if _, err := svc.CreateChat(user, "t", "claude", nil); !errors.Is(err, ErrProviderForbidden) {
		t.Fatalf("expected ErrProviderForbidden on create, got %v", err)
	}
}

func TestStreamMessageAccumulatesAndPersists(t *testing.T) {
	client := &fakeClient{name: "claude", events: []provider.GenerationEvent{
		{Type: provider.EventDelta, Text: "hi"},
		{Type: provider.EventDelta, Text: " there"},
		{Type: provider.EventDone},
	}}
	svc, store, user, chat := newTestService(t, client)

	events, err := svc.StreamMessage(context.Background(), user, chat.ID, "hello", nil)
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}

	var got []provider.GenerationEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 || got[2].Type != provider.EventDone {
		t.Fatalf("events = %+v", got)
	}

	stored, _ := store.LoadMessages(chat.ID)
	if len(stored) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored))
	}
	if stored[1].Role != model.RoleAssistant || stored[1].Content != "hi there" {
		t.Errorf("assistant turn = %+v, want the accumulated text", stored[1])
	}
}

func TestStreamMessageErrorSkipsPersistence(t *testing.T) {
	client := &fakeClient{name: "claude", events: []provider.GenerationEvent{
		{Type: provider.EventDelta, Text: "par"},
		{Type: provider.EventError, Text: "upstream exploded"},
	}}
	svc, store, user, chat := newTestService(t, client)

	events, err := svc.StreamMessage(context.Background(), user, chat.ID, "hello", nil)
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}

	var got []provider.GenerationEvent
	for ev := range events {
		got = append(got, ev)
	}
	last := got[len(got)-1]
	if last.Type != provider.EventError {
		t.Fatalf("last event = %+v, want Error", last)
	}

	// 失败的生成绝不留下助手消息，用户消息照常保留
	stored, _ := store.LoadMessages(chat.ID)
	if len(stored) != 1 || stored[0].Role != model.RoleUser {
		t.Fatalf("stored = %+v, want just the user turn", stored)
	}
}

func TestStreamMessageStopsWhenContextCancelled(t *testing.T) {
	client := &fakeClient{name: "claude", events: []provider.GenerationEvent{
		{Type: provider.EventDelta, Text: "a"},
		{Type: provider.EventDelta, Text: "b"},
		{Type: provider.EventDone},
	}}
	svc, _, user, chat := newTestService(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.StreamMessage(ctx, user, chat.ID, "hello", nil)
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}

	cancel()
	// 通道最终必须被关闭，转发协程不能泄漏
	for range events {
	}
}

func TestUpdateChatConfigSwitchesProvider(t *testing.T) {
	claude := &fakeClient{name: "claude", reply: "from claude"}
	deepseek := &fakeClient{name: "deepseek", reply: "from deepseek"}

	store := storage.NewMemoryStorage()
	user := &model.User{ID: "u-1", Providers: []string{"claude", "deepseek"}}
	store.CreateUser(user)

	svc := NewChatService(store, provider.NewCoordinator(claude, deepseek))
	chat, err := svc.CreateChat(user, "t", "claude", nil)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	if err := svc.UpdateChatConfig(user, chat.ID, model.ChatConfig{Provider: "deepseek"}); err != nil {
		t.Fatalf("UpdateChatConfig: %v", err)
	}

	result, err := svc.SendMessage(context.Background(), user, chat.ID, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result[1].Content != "from deepseek" {
		t.Errorf("reply = %q, the provider switch should take effect on the next turn", result[1].Content)
	}
}
