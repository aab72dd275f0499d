package conversation

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "hello")

	if msg.Role != RoleUser {
		t.Errorf("role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Content != "hello" {
		t.Errorf("content = %q, want %q", msg.Content, "hello")
	}
	if msg.TS <= 0 {
		t.Errorf("timestamp = %d, want positive epoch milliseconds", msg.TS)
	}
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		wantLen   int
		wantFirst string // content of first message after trimming
	}{
		{
			name:      "under the window",
			total:     10,
			wantLen:   10,
			wantFirst: "msg-0",
		},
		{
			name:      "exactly the window",
			total:     50,
			wantLen:   50,
			wantFirst: "msg-0",
		},
		{
			name:      "over the window keeps most recent",
			total:     80,
			wantLen:   50,
			wantFirst: "msg-30",
		},
		{
			name:    "empty",
			total:   0,
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages := make([]Message, tt.total)
			for i := range messages {
				messages[i] = Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)}
			}

			got := Trim(messages)

			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0].Content != tt.wantFirst {
				t.Errorf("first message = %q, want %q", got[0].Content, tt.wantFirst)
			}
			if tt.wantLen > 0 && got[len(got)-1].Content != fmt.Sprintf("msg-%d", tt.total-1) {
				t.Errorf("last message = %q, want most recent", got[len(got)-1].Content)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int // in runes
	}{
		{"short passes through", "hello", 5},
		{"empty passes through", "", 0},
		{"long is truncated", strings.Repeat("a", MaxMessageChars+100), MaxMessageChars},
		{"multi-byte truncated on rune boundary", strings.Repeat("é", MaxMessageChars+1), MaxMessageChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if len([]rune(got)) != tt.wantLen {
				t.Errorf("rune length = %d, want %d", len([]rune(got)), tt.wantLen)
			}
		})
	}
}
