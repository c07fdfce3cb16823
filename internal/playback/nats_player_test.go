// Package playback_test tests the NATS audio player.
package playback_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/book-expert/syllabs/internal/playback"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedText string

func (f fixedText) Text() string {
	return string(f)
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func TestNatsPlayer_Play(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "playback-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	sub, err := natsConnection.SubscribeSync("test.playback")
	require.NoError(t, err)

	player := playback.NewNatsPlayer(natsConnection, "test.playback", "session-1", "workflow-1", testLogger)
	player.Follow(fixedText("ko"))

	var audioPlayer core.AudioPlayer = player
	audioPlayer.Play("fr/ko.wav")

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var event core.PlaybackRequestedEvent

	err = json.Unmarshal(msg.Data, &event)
	require.NoError(t, err)

	assert.Equal(t, "session-1", event.SessionID)
	assert.Equal(t, "ko", event.Syllable)
	assert.Equal(t, "fr/ko.wav", event.AudioKey)
	assert.Equal(t, "workflow-1", event.Header.WorkflowID)
	assert.NotEmpty(t, event.Header.EventID)
}

func TestNatsPlayer_PlayOnClosedConnectionDoesNotPanic(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "playback-closed-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	natsConnection.Close()

	player := playback.NewNatsPlayer(natsConnection, "test.playback", "session-1", "", testLogger)
	assert.NotPanics(t, func() { player.Play("fr/ko.wav") })
}
