package ingest

import (
	"crypto/rand"
	"encoding/hex"
)

// Cookie names issued by the collection endpoint.
const (
	VisitorCookie = "_pv_id"  // long-lived, identifies the browser across visits
	SessionCookie = "_pv_sid" // session-scoped, closed by cookie expiry or inactivity
)

// Payload carries the fields a beacon may send, via query parameters on
// GET or a JSON body on POST.
type Payload struct {
	TrackingCode string `json:"site" form:"site"`
	Path         string `json:"path" form:"path"`
	Title        string `json:"title" form:"title"`
	Hostname     string `json:"hostname" form:"hostname"`
	Referrer     string `json:"referrer" form:"referrer"`
	VisitorID    string `json:"visitorId" form:"visitorId"`
	SessionID    string `json:"sessionId" form:"sessionId"`
	Goal         string `json:"goal" form:"goal"`
}

// Identity is the resolved visitor/session pair for one hit.
type Identity struct {
	VisitorID    string
	SessionID    string
	IsNewSession bool
}

// ResolveIdentity derives the visitor and session identifiers for a hit.
// Visitor id preference: cookie, then payload, then a fresh token.
// Session id preference: cookie, then payload; when neither is present
// the session id stays empty and IsNewSession is set, leaving the final
// id to the reconciler (which may adopt a recent session instead).
//
// Cookie issuance happens at the response boundary, not here.
func ResolveIdentity(visitorCookie, sessionCookie string, payload Payload) Identity {
	visitorID := visitorCookie
	if visitorID == "" {
		visitorID = payload.VisitorID
	}
	if visitorID == "" {
		visitorID = NewToken()
	}

	sessionID := sessionCookie
	if sessionID == "" {
		sessionID = payload.SessionID
	}

	return Identity{
		VisitorID:    visitorID,
		SessionID:    sessionID,
		IsNewSession: sessionID == "",
	}
}

// NewToken returns an opaque 24-character lowercase hex token.
func NewToken() string {
	b := make([]byte, 12)
	// crypto/rand.Read never fails on supported platforms
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
