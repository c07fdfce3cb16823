// Package worker_test tests the NATS keystroke worker.
package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/book-expert/syllabs/internal/syllable"
	"github.com/book-expert/syllabs/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keystrokeSubject = "test.keystroke"
	playbackSubject  = "test.playback"
	requestTimeout   = 5 * time.Second
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// manualClock is a worker clock the test moves by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func createTestNatsClient(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	cleanup := func() {
		natsConnection.Close()
		server.Shutdown()
	}

	return natsConnection, cleanup
}

func setupTest(t *testing.T, idleTimeout time.Duration) (*worker.NatsWorker, *nats.Conn, *manualClock) {
	t.Helper()

	clock := &manualClock{mu: sync.Mutex{}, now: baseTime}

	natsConnection, natsCleanup := createTestNatsClient(t)
	t.Cleanup(natsCleanup)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	trie := syllable.NewTrie()
	for _, name := range []string{"ka", "ko", "ab"} {
		trie.Insert(name, core.ResourceRef("fr/"+name+".wav"))
	}

	workerInstance, err := worker.NewNatsWorker(
		natsConnection,
		worker.Settings{
			KeystrokeSubject:   keystrokeSubject,
			PlaybackSubject:    playbackSubject,
			Debounce:           syllable.DefaultDebounceThreshold,
			SessionIdleTimeout: idleTimeout,
		},
		trie,
		nil,
		testLogger,
		worker.WithClock(clock.Now),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
	})

	// Make sure the subscription is live before the first request.
	require.Eventually(t, func() bool {
		return waitForResponder(natsConnection)
	}, requestTimeout, 10*time.Millisecond)

	return workerInstance, natsConnection, clock
}

func waitForResponder(natsConnection *nats.Conn) bool {
	data, err := json.Marshal(&core.KeystrokeEvent{
		Header:    newHeader(time.Time{}),
		SessionID: "",
		Key:       "",
		State:     "",
	})
	if err != nil {
		return false
	}

	_, err = natsConnection.Request(keystrokeSubject, data, 100*time.Millisecond)

	return err == nil
}

func newHeader(at time.Time) events.EventHeader {
	return events.EventHeader{
		Timestamp:  at,
		WorkflowID: "workflow-1",
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func sendKey(
	t *testing.T,
	natsConnection *nats.Conn,
	sessionID, key string,
	state core.KeyState,
	at time.Time,
) core.SessionStateEvent {
	t.Helper()

	eventData, err := json.Marshal(&core.KeystrokeEvent{
		Header:    newHeader(at),
		SessionID: sessionID,
		Key:       key,
		State:     state,
	})
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(keystrokeSubject, eventData, requestTimeout)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent core.SessionStateEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	return replyEvent
}

func TestMessageHandler_TypesSyllable(t *testing.T) {
	t.Parallel()

	_, natsConnection, _ := setupTest(t, 0)

	playbackSub, err := natsConnection.SubscribeSync(playbackSubject)
	require.NoError(t, err)

	reply := sendKey(t, natsConnection, "s1", "K", core.KeyPressed, baseTime)
	assert.Empty(t, reply.Error)
	assert.True(t, reply.Accepted)
	assert.Equal(t, "k", reply.Syllable)
	assert.Equal(t, "pending", reply.State)
	assert.False(t, reply.IsComplete)
	assert.Equal(t, "fr/ka.wav", reply.AudioKey)
	assert.Equal(t, "workflow-1", reply.Header.WorkflowID)

	reply = sendKey(t, natsConnection, "s1", "O", core.KeyPressed, baseTime.Add(200*time.Millisecond))
	assert.Equal(t, "ko", reply.Syllable)
	assert.Equal(t, "complete", reply.State)
	assert.True(t, reply.IsComplete)
	assert.Equal(t, "fr/ko.wav", reply.AudioKey)

	for _, expected := range []string{"fr/ka.wav", "fr/ko.wav"} {
		msg, nextErr := playbackSub.NextMsg(requestTimeout)
		require.NoError(t, nextErr)

		var playbackEvent core.PlaybackRequestedEvent

		require.NoError(t, json.Unmarshal(msg.Data, &playbackEvent))
		assert.Equal(t, expected, playbackEvent.AudioKey)
		assert.Equal(t, "s1", playbackEvent.SessionID)
	}
}

func TestMessageHandler_DebounceAndMiss(t *testing.T) {
	t.Parallel()

	_, natsConnection, _ := setupTest(t, 0)

	reply := sendKey(t, natsConnection, "s1", "A", core.KeyPressed, baseTime)
	assert.Equal(t, "a", reply.Syllable)

	reply = sendKey(t, natsConnection, "s1", "Z", core.KeyPressed, baseTime.Add(50*time.Millisecond))
	assert.False(t, reply.Accepted, "second press inside the debounce window is dropped")
	assert.Equal(t, "a", reply.Syllable)

	reply = sendKey(t, natsConnection, "s1", "Z", core.KeyPressed, baseTime.Add(200*time.Millisecond))
	assert.True(t, reply.Accepted)
	assert.Empty(t, reply.Syllable)
	assert.Equal(t, "empty", reply.State)
	assert.Empty(t, reply.AudioKey)
}

func TestMessageHandler_UnmappedKeyAndRelease(t *testing.T) {
	t.Parallel()

	_, natsConnection, _ := setupTest(t, 0)

	sendKey(t, natsConnection, "s1", "K", core.KeyPressed, baseTime)
	sendKey(t, natsConnection, "s1", "A", core.KeyPressed, baseTime.Add(200*time.Millisecond))

	reply := sendKey(t, natsConnection, "s1", "A", core.KeyReleased, baseTime.Add(250*time.Millisecond))
	assert.False(t, reply.Accepted)
	assert.Equal(t, "ka", reply.Syllable)

	reply = sendKey(t, natsConnection, "s1", "Escape", core.KeyPressed, baseTime.Add(400*time.Millisecond))
	assert.True(t, reply.Accepted)
	assert.Empty(t, reply.Syllable)
	assert.Equal(t, "empty", reply.State)
}

func TestMessageHandler_SessionsAreIndependent(t *testing.T) {
	t.Parallel()

	workerInstance, natsConnection, _ := setupTest(t, 0)

	sendKey(t, natsConnection, "s1", "K", core.KeyPressed, baseTime)

	reply := sendKey(t, natsConnection, "s2", "A", core.KeyPressed, baseTime.Add(10*time.Millisecond))
	assert.True(t, reply.Accepted, "the debounce gate is per session")
	assert.Equal(t, "a", reply.Syllable)

	reply = sendKey(t, natsConnection, "s1", "A", core.KeyPressed, baseTime.Add(200*time.Millisecond))
	assert.Equal(t, "ka", reply.Syllable)

	assert.Equal(t, 2, workerInstance.SessionCount())
}

func TestMessageHandler_EvictsIdleSessions(t *testing.T) {
	t.Parallel()

	// 1. Setup
	workerInstance, natsConnection, clock := setupTest(t, time.Minute)

	sendKey(t, natsConnection, "s1", "K", core.KeyPressed, baseTime)

	// 2. Execute: s2 arrives after s1 has been silent on the worker clock
	clock.Advance(2 * time.Minute)
	sendKey(t, natsConnection, "s2", "A", core.KeyPressed, baseTime.Add(2*time.Minute))

	// 3. Assert
	assert.Equal(t, 1, workerInstance.SessionCount())

	reply := sendKey(t, natsConnection, "s1", "A", core.KeyPressed, baseTime.Add(2*time.Minute))
	assert.Equal(t, "a", reply.Syllable, "evicted session starts over with an empty buffer")
	assert.Equal(t, 2, workerInstance.SessionCount())
}

func TestMessageHandler_FutureTimestampDoesNotEvictActiveSession(t *testing.T) {
	t.Parallel()

	// 1. Setup
	workerInstance, natsConnection, clock := setupTest(t, 10*time.Minute)

	sendKey(t, natsConnection, "s1", "K", core.KeyPressed, baseTime)

	// 2. Execute: a client whose clock runs eleven minutes ahead
	clock.Advance(100 * time.Millisecond)
	sendKey(t, natsConnection, "s2", "O", core.KeyPressed, baseTime.Add(11*time.Minute))

	// 3. Assert
	assert.Equal(t, 2, workerInstance.SessionCount())

	clock.Advance(100 * time.Millisecond)

	reply := sendKey(t, natsConnection, "s1", "A", core.KeyPressed, baseTime.Add(200*time.Millisecond))
	assert.True(t, reply.Accepted)
	assert.Equal(t, "ka", reply.Syllable)
	assert.Equal(t, "complete", reply.State)
}

func TestMessageHandler_InvalidEvents(t *testing.T) {
	t.Parallel()

	_, natsConnection, _ := setupTest(t, 0)

	testCases := []struct {
		name      string
		sessionID string
		key       string
		state     core.KeyState
		contains  string
	}{
		{name: "missing session", sessionID: "", key: "A", state: core.KeyPressed, contains: "session id"},
		{name: "missing key", sessionID: "s1", key: "", state: core.KeyPressed, contains: "key cannot be empty"},
		{name: "unknown key", sessionID: "s1", key: "Hyper", state: core.KeyPressed, contains: "unknown key"},
		{name: "unknown state", sessionID: "s1", key: "A", state: "held", contains: "unknown key state"},
	}

	for _, testCase := range testCases {
		reply := sendKey(t, natsConnection, testCase.sessionID, testCase.key, testCase.state, baseTime)
		assert.Contains(t, reply.Error, testCase.contains, testCase.name)
		assert.False(t, reply.Accepted, testCase.name)
	}

	replyMsg, err := natsConnection.Request(keystrokeSubject, []byte("not json"), requestTimeout)
	require.NoError(t, err)

	var replyEvent core.SessionStateEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))
	assert.Contains(t, replyEvent.Error, "failed to unmarshal event")
}

func TestNewNatsWorker_Validation(t *testing.T) {
	t.Parallel()

	trie := syllable.NewTrie()

	_, err := worker.NewNatsWorker(nil, worker.Settings{
		KeystrokeSubject: "", PlaybackSubject: "p", Debounce: 0, SessionIdleTimeout: 0,
	}, trie, nil, nil)
	require.ErrorIs(t, err, worker.ErrKeystrokeSubjectEmpty)

	_, err = worker.NewNatsWorker(nil, worker.Settings{
		KeystrokeSubject: "k", PlaybackSubject: "", Debounce: 0, SessionIdleTimeout: 0,
	}, trie, nil, nil)
	require.ErrorIs(t, err, worker.ErrPlaybackSubjectEmpty)

	_, err = worker.NewNatsWorker(nil, worker.Settings{
		KeystrokeSubject: "k", PlaybackSubject: "p", Debounce: 0, SessionIdleTimeout: 0,
	}, nil, nil, nil)
	require.ErrorIs(t, err, worker.ErrTrieNil)
}
