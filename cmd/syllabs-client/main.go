package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/config"
	"github.com/book-expert/syllabs/internal/core"
	"github.com/book-expert/syllabs/internal/keymap"
	"github.com/book-expert/syllabs/internal/objectstore"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Flag descriptions.
const (
	flagConfigDesc   = "Path to project.toml (defaults to the configurator search)"
	flagSessionDesc  = "Session ID used for typed keystrokes (defaults to a random UUID)"
	flagUploadDesc   = "Directory of syllable audio files to upload to the object store"
	flagTypeDesc     = "Text to replay as key presses"
	flagIntervalDesc = "Delay between replayed key presses"
	flagListenDesc   = "Directory receiving the audio of every playback request"
)

// Flag names.
const (
	flagConfig   = "config"
	flagSession  = "session"
	flagUpload   = "upload"
	flagType     = "type"
	flagInterval = "interval"
	flagListen   = "listen"
)

// Error messages.
const (
	errFailedToLoadConfig   = "failed to load configuration: %w"
	errFailedToInitLogger   = "failed to initialize logger: %w"
	errExactlyOneMode       = "exactly one of --upload, --type or --listen must be provided"
	errIntervalNotPositive  = "--interval must be positive"
	errFailedToConnect      = "failed to connect to NATS at %s: %w"
	errFailedToOpenStore    = "failed to open audio object store: %w"
	errFailedToSendKey      = "failed to send key %s: %w"
	errFailedToDecodeReply  = "failed to decode reply for key %s: %w"
	errFailedToSubscribe    = "failed to subscribe to %s: %w"
	errFailedToUploadFile   = "failed to upload %s: %w"
	errFailedToWalkUploadFS = "failed to walk upload directory %s: %w"
)

// Log messages.
const (
	logClientInitialized = "Syllabs client connected to %s"
	logUploaded          = "Uploaded %s"
	logUploadSummary     = "Uploaded %d files from %s\n"
	logTypedKey          = "%-8s %-7s %-9s %q %s\n"
	logListening         = "Listening for playback requests on %s, writing audio to %s\n"
	logPlaybackSaved     = "%s %q -> %s\n"
	logPlaybackFailed    = "Failed to save playback audio %s: %v"
)

const (
	logFileName      = "syllabs-client.log"
	defaultInterval  = 200 * time.Millisecond
	requestTimeout   = 5 * time.Second
	clientWorkflowID = "syllabs-client"
)

var errInvalidArguments = errors.New("invalid arguments")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	config   string
	session  string
	upload   string
	text     string
	listen   string
	interval time.Duration
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	err = validateArguments(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	cfg, clientLog, err := setup(flags.config)
	if err != nil {
		return err
	}

	defer func() { _ = clientLog.Close() }()

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("syllabs-client"))
	if err != nil {
		return fmt.Errorf(errFailedToConnect, cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	clientLog.Info(logClientInitialized, cfg.NATS.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return handleExecution(ctx, natsConnection, cfg, clientLog, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("syllabs-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.StringVar(&flags.session, flagSession, "", flagSessionDesc)
	flagSet.StringVar(&flags.upload, flagUpload, "", flagUploadDesc)
	flagSet.StringVar(&flags.text, flagType, "", flagTypeDesc)
	flagSet.DurationVar(&flags.interval, flagInterval, defaultInterval, flagIntervalDesc)
	flagSet.StringVar(&flags.listen, flagListen, "", flagListenDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if flags.session == "" {
		flags.session = uuid.NewString()
	}

	return flags, nil
}

// validateArguments checks that exactly one mode is selected.
func validateArguments(flags appFlags) error {
	modes := 0

	for _, value := range []string{flags.upload, flags.text, flags.listen} {
		if value != "" {
			modes++
		}
	}

	if modes != 1 {
		return fmt.Errorf("%w: %s", errInvalidArguments, errExactlyOneMode)
	}

	if flags.text != "" && flags.interval <= 0 {
		return fmt.Errorf("%w: %s", errInvalidArguments, errIntervalNotPositive)
	}

	return nil
}

// setup loads the configuration and initializes the logger.
func setup(configPath string) (*config.Config, *logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = loadWithConfigurator()
	}

	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	logDir := cfg.Paths.BaseLogsDir
	if logDir == "" {
		logDir = os.TempDir()
	}

	clientLog, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return cfg, clientLog, nil
}

func loadWithConfigurator() (*config.Config, error) {
	bootstrapLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	return config.Load(bootstrapLog)
}

// handleExecution dispatches to the selected mode.
func handleExecution(
	ctx context.Context,
	natsConnection *nats.Conn,
	cfg *config.Config,
	clientLog *logger.Logger,
	flags appFlags,
) error {
	if flags.text != "" {
		return typeText(ctx, natsConnection, cfg.NATS.KeystrokeSubject, flags, os.Stdout)
	}

	store, err := openStore(natsConnection, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	if flags.upload != "" {
		count, uploadErr := uploadDirectory(ctx, store, flags.upload, cfg.AssetExtension(), clientLog)
		if uploadErr != nil {
			return uploadErr
		}

		fmt.Printf(logUploadSummary, count, flags.upload)

		return nil
	}

	return listenPlayback(ctx, natsConnection, cfg.NATS.PlaybackSubject, store, flags.listen, clientLog, os.Stdout)
}

func openStore(natsConnection *nats.Conn, bucket string) (*objectstore.NatsObjectStore, error) {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf(errFailedToOpenStore, err)
	}

	store, err := objectstore.New(jetstreamContext, bucket)
	if err != nil {
		return nil, fmt.Errorf(errFailedToOpenStore, err)
	}

	return store, nil
}

// keystrokesFor returns the key pressed for each rune of text. Runes no key types are sent
// as Space, which clears the session buffer.
func keystrokesFor(text string) []keymap.KeyCode {
	keys := make([]keymap.KeyCode, 0, len(text))

	for _, char := range text {
		key, ok := keymap.KeyFor(char)
		if !ok {
			key = keymap.KeySpace
		}

		keys = append(keys, key)
	}

	return keys
}

// typeText replays text as key presses and prints the session state after each one.
func typeText(
	ctx context.Context,
	natsConnection *nats.Conn,
	subject string,
	flags appFlags,
	out io.Writer,
) error {
	for index, key := range keystrokesFor(flags.text) {
		if index > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(flags.interval):
			}
		}

		reply, err := sendKey(natsConnection, subject, flags.session, key)
		if err != nil {
			return err
		}

		if reply.Error != "" {
			fmt.Fprintf(out, logTypedKey, key, "error", "", "", reply.Error)

			continue
		}

		accepted := "accepted"
		if !reply.Accepted {
			accepted = "dropped"
		}

		fmt.Fprintf(out, logTypedKey, key, accepted, reply.State, reply.Syllable, reply.AudioKey)
	}

	return nil
}

func sendKey(natsConnection *nats.Conn, subject, sessionID string, key keymap.KeyCode) (*core.SessionStateEvent, error) {
	eventData, err := json.Marshal(&core.KeystrokeEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: clientWorkflowID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		SessionID: sessionID,
		Key:       string(key),
		State:     core.KeyPressed,
	})
	if err != nil {
		return nil, fmt.Errorf(errFailedToSendKey, key, err)
	}

	replyMsg, err := natsConnection.Request(subject, eventData, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf(errFailedToSendKey, key, err)
	}

	var reply core.SessionStateEvent

	err = json.Unmarshal(replyMsg.Data, &reply)
	if err != nil {
		return nil, fmt.Errorf(errFailedToDecodeReply, key, err)
	}

	return &reply, nil
}

// uploadDirectory stores every file under root with the asset extension, matched the same
// case-sensitive way the inventory matches it. Object names are slash-separated paths
// relative to root.
func uploadDirectory(
	ctx context.Context,
	store core.ObjectStore,
	root, extension string,
	clientLog *logger.Logger,
) (int, error) {
	count := 0

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.IsDir() || filepath.Ext(path) != extension {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)

		err = store.Upload(ctx, name, data)
		if err != nil {
			return fmt.Errorf(errFailedToUploadFile, name, err)
		}

		clientLog.Info(logUploaded, name)

		count++

		return nil
	})
	if err != nil {
		return count, fmt.Errorf(errFailedToWalkUploadFS, root, err)
	}

	return count, nil
}

// listenPlayback downloads the audio of every playback request into dir until ctx is
// cancelled.
func listenPlayback(
	ctx context.Context,
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	dir string,
	clientLog *logger.Logger,
	out io.Writer,
) error {
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	sub, err := natsConnection.Subscribe(subject, func(msg *nats.Msg) {
		event, path, saveErr := savePlayback(ctx, store, dir, msg.Data)
		if saveErr != nil {
			clientLog.Error(logPlaybackFailed, subject, saveErr)

			return
		}

		fmt.Fprintf(out, logPlaybackSaved, event.SessionID, event.Syllable, path)
	})
	if err != nil {
		return fmt.Errorf(errFailedToSubscribe, subject, err)
	}

	fmt.Fprintf(out, logListening, subject, dir)

	<-ctx.Done()

	return sub.Drain()
}

// savePlayback decodes a playback request and writes its audio under dir as
// <session>-<object base name>.
func savePlayback(
	ctx context.Context,
	store core.ObjectStore,
	dir string,
	data []byte,
) (*core.PlaybackRequestedEvent, string, error) {
	var event core.PlaybackRequestedEvent

	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal playback event: %w", err)
	}

	audio, err := store.Download(ctx, event.AudioKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", event.AudioKey, err)
	}

	path := filepath.Join(dir, event.SessionID+"-"+filepath.Base(filepath.FromSlash(event.AudioKey)))

	err = os.WriteFile(path, audio, 0o600)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return &event, path, nil
}
