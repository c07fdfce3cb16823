package core

import "github.com/book-expert/events"

// KeyState is the physical state carried by a keystroke event.
type KeyState string

const (
	// KeyPressed marks a key press. Only presses drive the syllable state machine.
	KeyPressed KeyState = "pressed"
	// KeyReleased marks a key release. Releases are observed for logging only.
	KeyReleased KeyState = "released"
)

// KeystrokeEvent is published by an input frontend for every raw key event.
type KeystrokeEvent struct {
	Header    events.EventHeader `json:"header"`
	SessionID string             `json:"session_id"`
	Key       string             `json:"key"`
	State     KeyState           `json:"state"`
}

// SessionStateEvent is the reply sent back for a keystroke request. It mirrors what a
// display shows: the current buffer and whether it is a complete syllable.
type SessionStateEvent struct {
	Header     events.EventHeader `json:"header"`
	SessionID  string             `json:"session_id"`
	Syllable   string             `json:"syllable"`
	State      string             `json:"state"`
	IsComplete bool               `json:"is_complete"`
	Accepted   bool               `json:"accepted"`
	AudioKey   string             `json:"audio_key,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// PlaybackRequestedEvent asks an audio sink to play the referenced asset.
type PlaybackRequestedEvent struct {
	Header    events.EventHeader `json:"header"`
	SessionID string             `json:"session_id"`
	Syllable  string             `json:"syllable"`
	AudioKey  string             `json:"audio_key"`
}
