package sharedcontext

import "time"

// EntryType classifies a coordination message
type EntryType string

const (
	EntryTheme        EntryType = "theme"
	EntryIntention    EntryType = "intention"
	EntryContribution EntryType = "contribution"
	EntryRequest      EntryType = "request"
	EntryReaction     EntryType = "reaction"
)

// IsValid reports whether t is a known entry type
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTheme, EntryIntention, EntryContribution, EntryRequest, EntryReaction:
		return true
	}
	return false
}

// Entry is a coordination message one agent leaves for others on the same
// canvas. Entries are immutable once created; the only transition is
// deletion via expiry.
type Entry struct {
	ID         string                 `json:"id"`
	CanvasID   string                 `json:"canvas_id"`
	SessionID  string                 `json:"session_id,omitempty"` // empty for system-authored entries
	AuthorName string                 `json:"author_name"`
	EntryType  EntryType              `json:"entry_type"`
	Content    map[string]interface{} `json:"content"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// TargetPersona extracts the targetPersona field from a request entry's
// content, if present
func (e Entry) TargetPersona() string {
	if v, ok := e.Content["targetPersona"].(string); ok {
		return v
	}
	return ""
}

// Ask extracts the ask field from a request entry's content, if present
func (e Entry) Ask() string {
	if v, ok := e.Content["ask"].(string); ok {
		return v
	}
	return ""
}

// QueryOptions filters a recent-entries read
type QueryOptions struct {
	EntryType        EntryType // optional filter
	Limit            int       // default 20, capped at 100
	ExcludeSessionID string    // hide an agent's own entries from it
}
