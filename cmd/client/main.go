package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"staychat/auth"
	"staychat/domain/chat"
	"staychat/domain/event"
	"staychat/domain/search"
	"staychat/internal"
	"staychat/repositories"
	"staychat/session"
	"staychat/sink"
	"staychat/transport"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the session lifecycle, configuration loading, and the
// interactive terminal loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	participant := config.ParticipantID
	if participant == "" {
		participant = uuid.NewString()
	}

	// 3. Open the local archive and its search index.
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		log.Info("Closing archive...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	archive := repositories.NewMessageArchive(db, log, nil)
	index := repositories.NewMessageIndex(blugeWriter, log)

	// 4. Wire the session against the conversation service.
	signer := auth.NewLocalSigner(config.AuthSecret, config.AuthIssuer, config.AuthTokenDuration)
	tokens := auth.NewParticipantSource(signer, participant)
	dialer := transport.NewWebsocketDialer(log, config.ServerURL, tokens,
		config.EventBufferSize, config.DialTimeout)
	history := transport.NewHistoryClient(log, config.HistoryURL,
		&http.Client{Timeout: config.DialTimeout}, tokens)

	sess := session.New(log, dialer, history,
		chat.ConversationID(config.ConversationID), chat.ParticipantID(participant),
		session.Config{
			MaxRetries:  config.MaxRetries,
			BaseDelay:   config.BaseRetryDelay,
			MaxDelay:    config.MaxRetryDelay,
			SinkTimeout: config.SinkTimeout,
		})
	sess.Subscribe(sink.NewArchiveSink(archive, index, log))
	sess.Subscribe(consoleSink{self: chat.ParticipantID(participant)})
	sess.Start(ctx)
	defer sess.Close()

	color.Green.Printf(">>> Conversation %s as %s (Ctrl+C to quit, /find to search)\n",
		config.ConversationID, participant)

	// 5. Interactive loop: stdin lines become sends or slash commands.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			switch {
			case line == "/quit":
				return exitOK, nil
			case line == "/retry":
				sess.Retry()
			case line == "/status":
				color.Yellow.Printf("-- %s", sess.Status())
				if lastErr := sess.LastError(); lastErr != "" {
					color.Yellow.Printf(" (%s)", lastErr)
				}
				fmt.Println()
			case strings.HasPrefix(line, "/find"):
				printSearch(ctx, index, line)
			default:
				if !sess.Send(line) {
					color.Red.Printf("not delivered (status: %s)\n", sess.Status())
				}
			}
		}
	}
}

func printSearch(ctx context.Context, index *repositories.MessageIndex, line string) {
	query := search.ParseQuery(line)
	hits, err := index.Search(ctx, query.Terms,
		chat.ConversationID(query.ConversationID), query.Limit)
	if err != nil {
		color.Red.Printf("search failed: %v\n", err)
		return
	}
	if len(hits) == 0 {
		color.Yellow.Println("no archived message matches")
		return
	}
	for _, hit := range hits {
		color.Magenta.Printf("[%s] %s: %s\n", hit.ConversationID, hit.SenderID, hit.Content)
	}
}

// consoleSink renders session events for the terminal.
type consoleSink struct {
	self chat.ParticipantID
}

func (c consoleSink) Consume(_ context.Context, e event.SessionEvent) error {
	switch evt := e.(type) {
	case event.MessageAccepted:
		m := evt.Message
		ts := m.CreatedAt.Format(time.TimeOnly)
		if m.OwnedBy(c.self) {
			color.Green.Printf("[%s] you: %s\n", ts, m.Content)
		} else {
			color.Cyan.Printf("[%s] %s: %s\n", ts, m.SenderID, m.Content)
		}
	case event.StateChanged:
		if evt.Err != nil {
			color.Yellow.Printf("-- connection %s (%v)\n", evt.To, evt.Err)
		} else {
			color.Yellow.Printf("-- connection %s\n", evt.To)
		}
	}
	return nil
}
