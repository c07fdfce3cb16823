package syllable

import "github.com/book-expert/syllabs/internal/core"

// State is the observable state of an Accumulator.
type State int

const (
	// StateEmpty means the buffer is cleared.
	StateEmpty State = iota
	// StatePending means the buffer holds a prefix that can still be extended.
	StatePending
	// StateComplete means the buffer is a syllable no longer syllable extends.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePending:
		return "pending"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Accumulator collects typed characters into a syllable buffer and plays the resource the
// buffer resolves to after every character.
type Accumulator struct {
	trie     *Trie
	player   core.AudioPlayer
	text     []rune
	complete bool
}

// NewAccumulator creates an empty accumulator reading from trie. player may be nil when
// the caller only consumes the returned refs.
func NewAccumulator(trie *Trie, player core.AudioPlayer) *Accumulator {
	return &Accumulator{
		trie:     trie,
		player:   player,
		text:     nil,
		complete: false,
	}
}

// HandleCharacter extends the buffer with char and resolves it. When the extended buffer
// leaves the trie, the buffer restarts from char alone; when that misses too the buffer
// is cleared and nothing is played. The played ref is returned with ok set.
func (a *Accumulator) HandleCharacter(char rune) (core.ResourceRef, bool) {
	a.text = append(a.text, char)
	a.complete = false

	ref, isLeaf, found := a.trie.Lookup(string(a.text))
	if !found {
		a.text = append(a.text[:0], char)

		ref, isLeaf, found = a.trie.Lookup(string(a.text))
		if !found {
			a.text = a.text[:0]

			return "", false
		}
	}

	if a.player != nil {
		a.player.Play(ref)
	}

	a.complete = isLeaf

	return ref, true
}

// HandleUnmappedKey clears the buffer.
func (a *Accumulator) HandleUnmappedKey() {
	a.text = a.text[:0]
	a.complete = false
}

// Text returns the current buffer.
func (a *Accumulator) Text() string {
	return string(a.text)
}

// IsComplete reports whether the buffer is a complete, non-extendable syllable.
func (a *Accumulator) IsComplete() bool {
	return a.complete
}

// State derives the state machine position from the buffer.
func (a *Accumulator) State() State {
	switch {
	case len(a.text) == 0:
		return StateEmpty
	case a.complete:
		return StateComplete
	default:
		return StatePending
	}
}
