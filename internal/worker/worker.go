// Package worker provides a NATS worker that feeds keystroke events into per-user syllable
// sessions.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/book-expert/syllabs/internal/keymap"
	"github.com/book-expert/syllabs/internal/observe"
	"github.com/book-expert/syllabs/internal/playback"
	"github.com/book-expert/syllabs/internal/syllable"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

var (
	// ErrKeystrokeSubjectEmpty indicates that no keystroke subject was configured.
	ErrKeystrokeSubjectEmpty = errors.New("keystroke subject cannot be empty")
	// ErrPlaybackSubjectEmpty indicates that no playback subject was configured.
	ErrPlaybackSubjectEmpty = errors.New("playback subject cannot be empty")
	// ErrTrieNil indicates that the worker was given no syllable trie.
	ErrTrieNil = errors.New("syllable trie cannot be nil")
	// ErrSessionIDEmpty indicates a keystroke event without a session ID.
	ErrSessionIDEmpty = errors.New("session id cannot be empty")
	// ErrKeyEmpty indicates a keystroke event without a key.
	ErrKeyEmpty = errors.New("key cannot be empty")
	// ErrUnknownKeyState indicates a keystroke state other than pressed or released.
	ErrUnknownKeyState = errors.New("unknown key state")
)

// Settings holds the worker's subjects and timing.
type Settings struct {
	KeystrokeSubject   string
	PlaybackSubject    string
	Debounce           time.Duration
	SessionIdleTimeout time.Duration
}

// Option customises a NatsWorker.
type Option func(*NatsWorker)

// WithClock replaces the worker clock. It stamps events that carry no timestamp and
// measures session idleness.
func WithClock(now func() time.Time) Option {
	return func(w *NatsWorker) {
		w.now = now
	}
}

// WithKeyMapper replaces the key-to-character mapper.
func WithKeyMapper(mapper syllable.KeyMapper) Option {
	return func(w *NatsWorker) {
		w.mapper = mapper
	}
}

// trackedSession pairs a session with the worker clock reading of its last message. Idle
// eviction uses that reading, never the client-supplied event time.
type trackedSession struct {
	session  *syllable.Session
	lastSeen time.Time
}

// NatsWorker listens for keystroke events on a NATS subject and drives one syllable
// session per session ID. nats.go delivers the messages of a subscription one at a time,
// so every session is mutated by a single goroutine.
type NatsWorker struct {
	natsConnection *nats.Conn
	settings       Settings
	trie           *syllable.Trie
	mapper         syllable.KeyMapper
	metrics        *observe.Metrics
	log            *logger.Logger
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*trackedSession
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	settings Settings,
	trie *syllable.Trie,
	metrics *observe.Metrics,
	log *logger.Logger,
	opts ...Option,
) (*NatsWorker, error) {
	if settings.KeystrokeSubject == "" {
		return nil, ErrKeystrokeSubjectEmpty
	}

	if settings.PlaybackSubject == "" {
		return nil, ErrPlaybackSubjectEmpty
	}

	if trie == nil {
		return nil, ErrTrieNil
	}

	w := &NatsWorker{
		natsConnection: natsConnection,
		settings:       settings,
		trie:           trie,
		mapper:         keymap.NewMapper(),
		metrics:        metrics,
		log:            log,
		now:            time.Now,
		mu:             sync.Mutex{},
		sessions:       make(map[string]*trackedSession),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.settings.KeystrokeSubject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.settings.KeystrokeSubject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// SessionCount returns the number of live sessions.
func (w *NatsWorker) SessionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.sessions)
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate keystroke event: %v", err)
		w.reply(msg, w.errorReply(event, err))

		return
	}

	outcome := w.processKeystroke(context.Background(), event)

	w.reply(msg, &core.SessionStateEvent{
		Header:     w.replyHeader(event),
		SessionID:  event.SessionID,
		Syllable:   outcome.Text,
		State:      outcome.State.String(),
		IsComplete: outcome.State == syllable.StateComplete,
		Accepted:   outcome.Accepted,
		AudioKey:   playedKey(outcome),
		Error:      "",
	})
}

// processKeystroke routes a validated event to its session and records the outcome.
func (w *NatsWorker) processKeystroke(ctx context.Context, event *core.KeystrokeEvent) syllable.Outcome {
	received := w.now()

	at := event.Header.Timestamp
	if at.IsZero() {
		at = received
	}

	session := w.session(ctx, event, received)

	outcome := session.HandleKey(syllable.KeyEvent{
		Key:     keymap.KeyCode(event.Key),
		Pressed: event.State == core.KeyPressed,
		At:      at,
	})

	if event.State == core.KeyPressed && w.metrics != nil {
		w.metrics.RecordKeystroke(ctx, outcome)
	}

	return outcome
}

// session returns the session for the event, creating it on first use, and marks it seen
// at received. Sessions not seen for longer than the idle timeout are evicted first.
func (w *NatsWorker) session(ctx context.Context, event *core.KeystrokeEvent, received time.Time) *syllable.Session {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evictIdle(ctx, received)

	tracked, ok := w.sessions[event.SessionID]
	if ok {
		tracked.lastSeen = received

		return tracked.session
	}

	player := playback.NewNatsPlayer(
		w.natsConnection,
		w.settings.PlaybackSubject,
		event.SessionID,
		event.Header.WorkflowID,
		w.log,
	)

	session := syllable.NewSession(event.SessionID, w.trie, w.mapper, player, w.settings.Debounce, w.log)
	player.Follow(session)
	w.sessions[event.SessionID] = &trackedSession{session: session, lastSeen: received}

	if w.metrics != nil {
		w.metrics.ActiveSessions.Add(ctx, 1)
	}

	w.log.Info("Session %s started", event.SessionID)

	return session
}

func (w *NatsWorker) evictIdle(ctx context.Context, now time.Time) {
	if w.settings.SessionIdleTimeout <= 0 {
		return
	}

	for id, tracked := range w.sessions {
		if now.Sub(tracked.lastSeen) <= w.settings.SessionIdleTimeout {
			continue
		}

		delete(w.sessions, id)

		if w.metrics != nil {
			w.metrics.ActiveSessions.Add(ctx, -1)
		}

		w.log.Info("Session %s evicted after being idle since %s", id, tracked.lastSeen.Format(time.RFC3339))
	}
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*core.KeystrokeEvent, error) {
	var event core.KeystrokeEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	err = validateKeystroke(&event)
	if err != nil {
		return &event, err
	}

	return &event, nil
}

// validateKeystroke ensures that the event names a session, a known key and a state.
func validateKeystroke(event *core.KeystrokeEvent) error {
	if event.SessionID == "" {
		return ErrSessionIDEmpty
	}

	if event.Key == "" {
		return ErrKeyEmpty
	}

	_, err := keymap.Parse(event.Key)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}

	if event.State != core.KeyPressed && event.State != core.KeyReleased {
		return fmt.Errorf("%w: '%s'", ErrUnknownKeyState, event.State)
	}

	return nil
}

// reply marshals and responds with the state event when the sender asked for a reply.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *core.SessionStateEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event for session %s: %v", replyEvent.SessionID, err)
	}
}

func (w *NatsWorker) errorReply(event *core.KeystrokeEvent, err error) *core.SessionStateEvent {
	sessionID := ""
	if event != nil {
		sessionID = event.SessionID
	}

	return &core.SessionStateEvent{
		Header:     w.replyHeader(event),
		SessionID:  sessionID,
		Syllable:   "",
		State:      "",
		IsComplete: false,
		Accepted:   false,
		AudioKey:   "",
		Error:      err.Error(),
	}
}

func (w *NatsWorker) replyHeader(event *core.KeystrokeEvent) events.EventHeader {
	header := events.EventHeader{
		Timestamp:  w.now(),
		WorkflowID: "",
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}

	if event != nil {
		header.WorkflowID = event.Header.WorkflowID
		header.UserID = event.Header.UserID
		header.TenantID = event.Header.TenantID
	}

	return header
}

func playedKey(outcome syllable.Outcome) string {
	if !outcome.Played {
		return ""
	}

	return string(outcome.Resource)
}
