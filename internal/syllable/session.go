package syllable

import (
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/book-expert/syllabs/internal/keymap"
)

// KeyMapper converts a logical key into the lowercase character it types.
type KeyMapper interface {
	Char(key keymap.KeyCode) (rune, bool)
}

// KeyEvent is one raw key event delivered to a session.
type KeyEvent struct {
	Key     keymap.KeyCode
	Pressed bool
	At      time.Time
}

// Outcome describes what a key event did to the session.
type Outcome struct {
	Accepted bool
	Mapped   bool
	Played   bool
	Resource core.ResourceRef
	Text     string
	State    State
}

// Session is the per-user matcher context: a debounce gate in front of an accumulator.
// A Session is driven by a single goroutine.
type Session struct {
	id           string
	gate         *Gate
	mapper       KeyMapper
	accumulator  *Accumulator
	log          *logger.Logger
	lastActivity time.Time
}

// NewSession creates a session with an empty buffer.
func NewSession(
	id string,
	trie *Trie,
	mapper KeyMapper,
	player core.AudioPlayer,
	threshold time.Duration,
	log *logger.Logger,
) *Session {
	return &Session{
		id:           id,
		gate:         NewGate(threshold),
		mapper:       mapper,
		accumulator:  NewAccumulator(trie, player),
		log:          log,
		lastActivity: time.Time{},
	}
}

// HandleKey feeds one raw key event through the gate and into the accumulator.
func (s *Session) HandleKey(event KeyEvent) Outcome {
	s.lastActivity = event.At

	if !event.Pressed {
		s.log.Info("[%s] Key release: %s", s.id, event.Key)

		return s.outcome(false, false, "", false)
	}

	s.log.Info("[%s] Key press: %s", s.id, event.Key)

	if !s.gate.Allow(event.At) {
		s.log.Info("[%s] Too soon, waiting for %dms...", s.id, s.gate.Remaining(event.At).Milliseconds())

		return s.outcome(false, false, "", false)
	}

	char, mapped := s.mapper.Char(event.Key)
	if !mapped {
		s.accumulator.HandleUnmappedKey()
		s.log.Info("[%s] Unmapped key %s, syllable cleared", s.id, event.Key)

		return s.outcome(true, false, "", false)
	}

	ref, played := s.accumulator.HandleCharacter(char)
	s.log.Info("[%s] syllable='%s' state=%s", s.id, s.accumulator.Text(), s.accumulator.State())

	return s.outcome(true, true, ref, played)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Text returns the current syllable buffer.
func (s *Session) Text() string {
	return s.accumulator.Text()
}

// IsComplete reports whether the buffer is a complete syllable.
func (s *Session) IsComplete() bool {
	return s.accumulator.IsComplete()
}

// State returns the accumulator state.
func (s *Session) State() State {
	return s.accumulator.State()
}

// LastAccepted returns the time of the last key press that passed the gate.
func (s *Session) LastAccepted() time.Time {
	return s.gate.LastAccepted()
}

// LastActivity returns the time of the last event of any kind.
func (s *Session) LastActivity() time.Time {
	return s.lastActivity
}

func (s *Session) outcome(accepted, mapped bool, ref core.ResourceRef, played bool) Outcome {
	return Outcome{
		Accepted: accepted,
		Mapped:   mapped,
		Played:   played,
		Resource: ref,
		Text:     s.accumulator.Text(),
		State:    s.accumulator.State(),
	}
}
