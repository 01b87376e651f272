// Package history defines the records persisted by vhist. These are the
// on-disk contract: metadata.json, errors.json and the credentials file are
// read and written as these types.
package history

import "time"

// NotUnderstood is stored as the message when an entry carries neither a
// transcript nor a fallback container text.
const NotUnderstood = "Audio was not intended for this device"

// Credential is one account from the credentials file.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Entry is the metadata for one voice-history item, in on-page order
// (most recent first).
type Entry struct {
	Message string `json:"message"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Device  string `json:"device"`
	DivID   string `json:"div_id"`             // stable element id, dedup key across runs
	AudioID string `json:"audio_id,omitempty"` // set by correlation; may stay empty
}

// ErrorDetail describes one account failure.
type ErrorDetail struct {
	Error string `json:"error"`
	Stack string `json:"stack_trace"`
}

// ErrorRecord is written to errors.json keyed by username.
type ErrorRecord map[string]ErrorDetail

// NewErrorRecord builds a single-account ErrorRecord.
func NewErrorRecord(username string, err error, stack string) ErrorRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorRecord{username: {Error: msg, Stack: stack}}
}

// Index maps div_id to entry for dedup lookups. Later duplicates lose.
func Index(entries []Entry) map[string]Entry {
	idx := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.DivID == "" {
			continue
		}
		if _, ok := idx[e.DivID]; !ok {
			idx[e.DivID] = e
		}
	}
	return idx
}

// RunDate formats t as the per-run date directory name.
func RunDate(t time.Time) string {
	return t.Format("2006-01-02")
}
