package thread

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/api"
	"marketchat/internal/infra/push"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func msgAt(id string, sec int, sender string) chat.Message {
	return chat.Message{
		ID:        id,
		SenderID:  sender,
		Text:      "msg " + id,
		CreatedAt: time.Date(2026, 3, 14, 12, 0, sec, 0, time.UTC),
		Status:    chat.StatusSent,
	}
}

// fakeService is an in-memory MessageService with scriptable pages and
// failure injection.
type fakeService struct {
	mu            sync.Mutex
	conversation  chat.Conversation
	pages         map[int]api.MessagePage
	pageErr       map[int]error
	sendErr       error
	sendBlock     chan struct{} // when set, SendText waits on it
	sentTexts     []string
	sentFiles     [][]string
	markReadCalls int
	nextID        int
}

func newFakeService() *fakeService {
	return &fakeService{
		conversation: chat.Conversation{ID: "c1", Participants: []string{"me", "peer"}},
		pages:        map[int]api.MessagePage{},
		pageErr:      map[int]error{},
		nextID:       100,
	}
}

func (f *fakeService) Conversation(ctx context.Context, id string) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := f.conversation
	conv.ID = id
	return conv, nil
}

func (f *fakeService) Messages(ctx context.Context, conversationID string, page int) (api.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pageErr[page]; err != nil {
		return api.MessagePage{}, err
	}
	return f.pages[page], nil
}

func (f *fakeService) SendText(ctx context.Context, conversationID, text string) (chat.Message, error) {
	if f.sendBlock != nil {
		<-f.sendBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	f.nextID++
	f.sentTexts = append(f.sentTexts, text)
	return chat.Message{
		ID:             fmt.Sprintf("m%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       "me",
		Text:           text,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeService) SendAttachments(ctx context.Context, conversationID, text string, files []api.Upload) (chat.Message, error) {
	names := make([]string, 0, len(files))
	for _, u := range files {
		names = append(names, u.Name)
	}
	f.mu.Lock()
	f.sentFiles = append(f.sentFiles, names)
	sendErr := f.sendErr
	f.mu.Unlock()
	if sendErr != nil {
		return chat.Message{}, sendErr
	}
	msg, err := f.SendText(ctx, conversationID, text)
	if err != nil {
		return chat.Message{}, err
	}
	for i, n := range names {
		msg.Attachments = append(msg.Attachments, chat.Attachment{
			ID:   fmt.Sprintf("a%d", i),
			Name: n,
			URL:  "/media/" + n,
		})
	}
	return msg, nil
}

func (f *fakeService) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls++
	return nil
}

func newTestEngine(svc MessageService, hooks Hooks) *Engine {
	return NewEngine(svc, "me", NewIndicator(DefaultTypingTTL, nil), hooks, testLogger)
}

func TestOpenSinglePage(t *testing.T) {
	svc := newFakeService()
	svc.pages[1] = api.MessagePage{
		Messages: []chat.Message{
			msgAt("m1", 1, "peer"), msgAt("m2", 2, "me"), msgAt("m3", 3, "peer"),
			msgAt("m4", 4, "me"), msgAt("m5", 5, "peer"),
		},
		Count: 5,
	}
	e := newTestEngine(svc, Hooks{})
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Messages) != 5 {
		t.Errorf("got %d messages, want 5", len(snap.Messages))
	}
	if snap.HasMore {
		t.Error("single page must not report more history")
	}
}

func TestOpenJumpsToLastPage(t *testing.T) {
	page1 := make([]chat.Message, 0, 20)
	for i := 0; i < 20; i++ {
		page1 = append(page1, msgAt(fmt.Sprintf("m%02d", i+1), i+1, "peer"))
	}
	page3 := []chat.Message{
		msgAt("m41", 41, "peer"), msgAt("m42", 42, "me"), msgAt("m43", 43, "peer"),
		msgAt("m44", 44, "me"), msgAt("m45", 45, "peer"),
	}
	svc := newFakeService()
	svc.pages[1] = api.MessagePage{Messages: page1, Count: 45, HasNext: true}
	svc.pages[3] = api.MessagePage{Messages: page3, Count: 45, HasPrev: true}

	e := newTestEngine(svc, Hooks{})
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Messages) != 5 {
		t.Fatalf("got %d messages, want only the last page (5)", len(snap.Messages))
	}
	if snap.Messages[0].ID != "m41" {
		t.Errorf("window starts at %q, want m41", snap.Messages[0].ID)
	}
	if !snap.HasMore {
		t.Error("two pages remain, HasMore must be true")
	}
}

func TestLoadOlderPrependsAndTracksHasMore(t *testing.T) {
	page2 := make([]chat.Message, 0, 20)
	for i := 20; i < 40; i++ {
		page2 = append(page2, msgAt(fmt.Sprintf("m%02d", i+1), i+1, "peer"))
	}
	svc := newFakeService()
	// Page size is inferred from page 1's length: 20 items, count 45,
	// so the window opens on page 3.
	svc.pages[1] = api.MessagePage{Messages: makeSeq(1, 20), Count: 45, HasNext: true}
	svc.pages[2] = api.MessagePage{Messages: page2, Count: 45, HasPrev: true, HasNext: true}
	svc.pages[3] = api.MessagePage{Messages: makeSeq(41, 45), Count: 45, HasPrev: true}

	var prepended int
	e := newTestEngine(svc, Hooks{OnPrepend: func(n int) { prepended += n }})
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := e.LoadOlder(); err != nil {
		t.Fatalf("load older failed: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Messages) != 25 {
		t.Fatalf("got %d messages, want 25 after one older page", len(snap.Messages))
	}
	if snap.Messages[0].ID != "m21" {
		t.Errorf("oldest loaded = %q, want m21", snap.Messages[0].ID)
	}
	if !snap.HasMore {
		t.Error("page 1 remains, HasMore must stay true")
	}
	if prepended != 20 {
		t.Errorf("prepend hook saw %d, want 20", prepended)
	}

	if err := e.LoadOlder(); err != nil {
		t.Fatalf("load older failed: %v", err)
	}
	snap = e.Snapshot()
	if len(snap.Messages) != 45 {
		t.Fatalf("got %d messages, want 45", len(snap.Messages))
	}
	if snap.HasMore {
		t.Error("no pages remain, HasMore must be false")
	}
	for i := 1; i < len(snap.Messages); i++ {
		if chat.Less(snap.Messages[i], snap.Messages[i-1]) {
			t.Fatalf("window out of order at %d", i)
		}
	}
}

func makeSeq(from, to int) []chat.Message {
	out := make([]chat.Message, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, msgAt(fmt.Sprintf("m%02d", i), i, "peer"))
	}
	return out
}

func TestLoadOlderFailureLeavesWindowUntouched(t *testing.T) {
	svc := newFakeService()
	svc.pages[1] = api.MessagePage{Messages: makeSeq(1, 20), Count: 45, HasNext: true}
	svc.pages[3] = api.MessagePage{Messages: makeSeq(41, 45), Count: 45, HasPrev: true}
	svc.pageErr[2] = fmt.Errorf("boom")

	e := newTestEngine(svc, Hooks{})
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	before := e.Snapshot()
	if err := e.LoadOlder(); err == nil {
		t.Fatal("expected error from failing page")
	}
	after := e.Snapshot()
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("window changed on failed fetch: %d -> %d", len(before.Messages), len(after.Messages))
	}
	if !after.HasMore {
		t.Error("HasMore must survive a failed fetch")
	}

	// The failure is transient: the same request succeeds afterwards.
	svc.mu.Lock()
	delete(svc.pageErr, 2)
	svc.pages[2] = api.MessagePage{Messages: makeSeq(21, 40), Count: 45, HasPrev: true, HasNext: true}
	svc.mu.Unlock()
	if err := e.LoadOlder(); err != nil {
		t.Fatalf("retry after transient failure: %v", err)
	}
	if got := len(e.Snapshot().Messages); got != 25 {
		t.Errorf("got %d messages after recovery, want 25", got)
	}
}

func TestApplyMessageCreated(t *testing.T) {
	svc := newFakeService()
	svc.pages[1] = api.MessagePage{Messages: makeSeq(1, 3), Count: 3}
	var appended []chat.Message
	e := newTestEngine(svc, Hooks{OnAppend: func(m chat.Message) { appended = append(appended, m) }})
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	incoming := msgAt("m04", 4, "peer")
	incoming.ConversationID = "c1"
	e.Apply(push.MessageCreated{Message: incoming})
	if got := len(e.Snapshot().Messages); got != 4 {
		t.Fatalf("got %d messages, want 4", got)
	}

	// Same id again: de-duplicated.
	e.Apply(push.MessageCreated{Message: incoming})
	if got := len(e.Snapshot().Messages); got != 4 {
		t.Errorf("duplicate push appended, got %d messages", got)
	}

	// Different conversation: dropped.
	other := msgAt("m99", 9, "peer")
	other.ConversationID = "c2"
	e.Apply(push.MessageCreated{Message: other})
	if got := len(e.Snapshot().Messages); got != 4 {
		t.Errorf("foreign-conversation push applied, got %d messages", got)
	}
	if len(appended) != 1 {
		t.Errorf("append hook fired %d times, want 1", len(appended))
	}
}

func TestApplyReadMarksOwnMessages(t *testing.T) {
	svc := newFakeService()
	svc.pages[1] = api.MessagePage{
		Messages: []chat.Message{msgAt("m1", 1, "me"), msgAt("m2", 2, "peer"), msgAt("m3", 3, "me")},
		Count:    3,
	}
	e := newTestEngine(svc, Hooks{})
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// A read event from myself must not change anything.
	e.Apply(push.Read{UserID: "me"})
	for _, m := range e.Snapshot().Messages {
		if m.Read {
			t.Fatal("own read event must be ignored")
		}
	}

	// A read event without identity is dropped, not attributed to the peer.
	e.Apply(push.Read{UserID: ""})
	for _, m := range e.Snapshot().Messages {
		if m.Read {
			t.Fatal("anonymous read event must be ignored")
		}
	}

	e.Apply(push.Read{UserID: "peer"})
	for _, m := range e.Snapshot().Messages {
		own := m.SenderID == "me"
		if own && !m.Read {
			t.Errorf("own message %s not marked read", m.ID)
		}
		if !own && m.Read {
			t.Errorf("peer message %s wrongly marked read", m.ID)
		}
	}
}

func TestMarkReadPredicate(t *testing.T) {
	tests := []struct {
		name      string
		messages  []chat.Message
		wantCalls int
	}{
		{
			name:      "unread peer message present",
			messages:  []chat.Message{msgAt("m1", 1, "peer")},
			wantCalls: 1,
		},
		{
			name: "all peer messages read",
			messages: func() []chat.Message {
				m := msgAt("m1", 1, "peer")
				m.Read = true
				return []chat.Message{m, msgAt("m2", 2, "me")}
			}(),
			wantCalls: 0,
		},
		{
			name:      "only own messages",
			messages:  []chat.Message{msgAt("m1", 1, "me")},
			wantCalls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.pages[1] = api.MessagePage{Messages: tt.messages, Count: len(tt.messages)}
			e := newTestEngine(svc, Hooks{})
			if err := e.Open(context.Background(), "c1"); err != nil {
				t.Fatalf("open failed: %v", err)
			}
			invoked, err := e.MarkReadIfNeeded(context.Background())
			if err != nil {
				t.Fatalf("mark read failed: %v", err)
			}
			if invoked != (tt.wantCalls == 1) {
				t.Errorf("invoked = %v, want %v", invoked, tt.wantCalls == 1)
			}
			if svc.markReadCalls != tt.wantCalls {
				t.Errorf("mark read calls = %d, want %d", svc.markReadCalls, tt.wantCalls)
			}
		})
	}
}

func TestTypingEventSetsAndExpiresFlag(t *testing.T) {
	svc := newFakeService()
	svc.pages[1] = api.MessagePage{Messages: makeSeq(1, 1), Count: 1}
	expired := make(chan struct{}, 1)
	e := NewEngine(svc, "me", NewIndicator(30*time.Millisecond, func() { expired <- struct{}{} }), Hooks{}, testLogger)
	if err := e.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Typing from myself is ignored, as is a frame without identity.
	e.Apply(push.Typing{UserID: "me"})
	if e.Snapshot().PeerTyping {
		t.Fatal("own typing event must not set the flag")
	}
	e.Apply(push.Typing{UserID: ""})
	if e.Snapshot().PeerTyping {
		t.Fatal("anonymous typing event must not set the flag")
	}

	e.Apply(push.Typing{UserID: "peer"})
	if !e.Snapshot().PeerTyping {
		t.Fatal("peer typing event must set the flag")
	}
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("typing flag never expired")
	}
	if e.Snapshot().PeerTyping {
		t.Error("flag still set after expiry")
	}
}
