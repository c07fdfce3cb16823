// Package playback provides an audio player that forwards playback requests over NATS to
// whichever audio sink serves the session.
package playback

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// TextSource exposes the syllable currently typed, attached to playback requests for
// display by the sink.
type TextSource interface {
	Text() string
}

// NatsPlayer implements core.AudioPlayer for one session by publishing a
// PlaybackRequestedEvent per Play call.
type NatsPlayer struct {
	natsConnection *nats.Conn
	subject        string
	sessionID      string
	workflowID     string
	text           TextSource
	log            *logger.Logger
}

// NewNatsPlayer creates a player publishing to subject on behalf of sessionID.
func NewNatsPlayer(
	natsConnection *nats.Conn,
	subject string,
	sessionID string,
	workflowID string,
	log *logger.Logger,
) *NatsPlayer {
	return &NatsPlayer{
		natsConnection: natsConnection,
		subject:        subject,
		sessionID:      sessionID,
		workflowID:     workflowID,
		text:           nil,
		log:            log,
	}
}

// Follow attaches the source of the syllable text sent along with each request.
func (p *NatsPlayer) Follow(text TextSource) {
	p.text = text
}

// Play publishes a playback request. Failures are logged; playback is fire-and-forget.
func (p *NatsPlayer) Play(ref core.ResourceRef) {
	err := p.publish(ref)
	if err != nil {
		p.log.Error("Failed to request playback of '%s' for session %s: %v", ref, p.sessionID, err)

		return
	}

	p.log.Info("Playback requested for session %s: %s", p.sessionID, ref)
}

func (p *NatsPlayer) publish(ref core.ResourceRef) error {
	syllableText := ""
	if p.text != nil {
		syllableText = p.text.Text()
	}

	event := &core.PlaybackRequestedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: p.workflowID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		SessionID: p.sessionID,
		Syllable:  syllableText,
		AudioKey:  string(ref),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal playback event: %w", err)
	}

	err = p.natsConnection.Publish(p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish playback event to '%s': %w", p.subject, err)
	}

	return nil
}
