package push

import "testing"

func TestParseNewMessage(t *testing.T) {
	frame := []byte(`{"event":"NewMessage","data":{"roomId":"r1","message":"hi","sentBy":"7","sentTo":"8","sentAt":1700000000000}}`)

	evt, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if evt.Kind != "push.message" {
		t.Errorf("kind = %q, want push.message", evt.Kind)
	}
	p, ok := evt.Payload.(NewMessage)
	if !ok {
		t.Fatalf("payload type = %T, want NewMessage", evt.Payload)
	}
	if p.RoomID != "r1" || p.SentBy != "7" || p.Message != "hi" {
		t.Errorf("payload = %+v", p)
	}
}

func TestParsePresenceEvents(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantKind string
	}{
		{"online", `{"event":"UserOnline","data":{"userId":"42"}}`, "push.user_online"},
		{"offline", `{"event":"UserOffline","data":{"userId":"42"}}`, "push.user_offline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := Parse([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if evt.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", evt.Kind, tt.wantKind)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `garbage`},
		{"unknown event", `{"event":"Typing","data":{}}`},
		{"message missing room", `{"event":"NewMessage","data":{"sentBy":"7"}}`},
		{"message missing sender", `{"event":"NewMessage","data":{"roomId":"r1"}}`},
		{"online missing user", `{"event":"UserOnline","data":{}}`},
		{"offline missing user", `{"event":"UserOffline","data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.frame)); err == nil {
				t.Errorf("Parse(%s) expected error", tt.frame)
			}
		})
	}
}
