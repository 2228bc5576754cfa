package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveIdentity(t *testing.T) {
	tests := []struct {
		name          string
		visitorCookie string
		sessionCookie string
		payload       Payload
		wantVisitor   string
		wantSession   string
		wantNew       bool
	}{
		{
			name:          "cookies win over payload",
			visitorCookie: "aaaaaaaaaaaaaaaaaaaaaaaa",
			sessionCookie: "bbbbbbbbbbbbbbbbbbbbbbbb",
			payload:       Payload{VisitorID: "x", SessionID: "y"},
			wantVisitor:   "aaaaaaaaaaaaaaaaaaaaaaaa",
			wantSession:   "bbbbbbbbbbbbbbbbbbbbbbbb",
			wantNew:       false,
		},
		{
			name:        "payload fills missing cookies",
			payload:     Payload{VisitorID: "cccccccccccccccccccccccc", SessionID: "dddddddddddddddddddddddd"},
			wantVisitor: "cccccccccccccccccccccccc",
			wantSession: "dddddddddddddddddddddddd",
			wantNew:     false,
		},
		{
			name:        "no session id anywhere seeds a new session",
			payload:     Payload{VisitorID: "cccccccccccccccccccccccc"},
			wantVisitor: "cccccccccccccccccccccccc",
			wantSession: "",
			wantNew:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ResolveIdentity(tt.visitorCookie, tt.sessionCookie, tt.payload)
			assert.Equal(t, tt.wantVisitor, id.VisitorID)
			assert.Equal(t, tt.wantSession, id.SessionID)
			assert.Equal(t, tt.wantNew, id.IsNewSession)
		})
	}
}

func TestResolveIdentityGeneratesVisitorToken(t *testing.T) {
	id := ResolveIdentity("", "", Payload{})
	assert.Regexp(t, "^[0-9a-f]{24}$", id.VisitorID)
	assert.True(t, id.IsNewSession)
	assert.Empty(t, id.SessionID)
}

func TestNewTokenShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewToken()
		assert.Regexp(t, "^[0-9a-f]{24}$", token)
		assert.False(t, seen[token], "tokens must not repeat")
		seen[token] = true
	}
}
