package push

import (
	"errors"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		check   func(t *testing.T, e Event)
	}{
		{
			name: "message created",
			raw:  `{"event":"message.created","payload":{"id":"m1","conversation":"c1","sent_by":"u2","text":"hi","created_at":"2026-03-14T12:00:00Z"}}`,
			check: func(t *testing.T, e Event) {
				mc, ok := e.(MessageCreated)
				if !ok {
					t.Fatalf("got %T, want MessageCreated", e)
				}
				if mc.Message.ID != "m1" || mc.Message.SenderID != "u2" || mc.Message.Text != "hi" {
					t.Errorf("unexpected message: %+v", mc.Message)
				}
			},
		},
		{
			name: "message without sender stays unknown",
			raw:  `{"event":"message.created","payload":{"id":"m2","conversation":"c1","text":"?","created_at":"2026-03-14T12:00:00Z"}}`,
			check: func(t *testing.T, e Event) {
				mc := e.(MessageCreated)
				if mc.Message.SenderID != "" {
					t.Errorf("sender should stay empty, got %q", mc.Message.SenderID)
				}
			},
		},
		{
			name: "message with attachments",
			raw:  `{"event":"message.created","payload":{"id":"m3","conversation":"c1","sent_by":"u2","attachments":[{"id":"a1","name":"cat.png","url":"/media/a1"}],"created_at":"2026-03-14T12:00:00Z"}}`,
			check: func(t *testing.T, e Event) {
				mc := e.(MessageCreated)
				if len(mc.Message.Attachments) != 1 || mc.Message.Attachments[0].Name != "cat.png" {
					t.Errorf("unexpected attachments: %+v", mc.Message.Attachments)
				}
			},
		},
		{
			name: "typing",
			raw:  `{"event":"typing","payload":{"user_id":"u2"}}`,
			check: func(t *testing.T, e Event) {
				ty, ok := e.(Typing)
				if !ok || ty.UserID != "u2" {
					t.Errorf("got %#v, want Typing{u2}", e)
				}
			},
		},
		{
			name: "read",
			raw:  `{"event":"read","payload":{"user_id":"u2"}}`,
			check: func(t *testing.T, e Event) {
				rd, ok := e.(Read)
				if !ok || rd.UserID != "u2" {
					t.Errorf("got %#v, want Read{u2}", e)
				}
			},
		},
		{name: "non-json frame", raw: "ping!", wantErr: ErrMalformedFrame},
		{name: "unknown event kind", raw: `{"event":"presence","payload":{}}`, wantErr: ErrUnknownEvent},
		{name: "malformed payload", raw: `{"event":"typing","payload":"nope"}`, wantErr: ErrMalformedFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeEvent([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, event)
		})
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{
			name: "http becomes ws",
			base: "http://localhost:8000/api",
			path: "/ws/notifications/",
			want: "ws://localhost:8000/api/ws/notifications/?token=tok",
		},
		{
			name: "https becomes wss",
			base: "https://market.example/api/",
			path: "/ws/conversations/c1/",
			want: "wss://market.example/api/ws/conversations/c1/?token=tok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := endpointURL(tt.base, tt.path, "tok")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := endpointURL("ftp://nope", "/ws/", "tok"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
