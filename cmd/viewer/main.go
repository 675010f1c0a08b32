package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"staychat/domain/chat"
	"staychat/internal"
	"staychat/repositories"
)

// viewer dumps the archived messages of a conversation without touching
// the network. Useful to inspect what the client persisted locally.
func main() {
	limit := flag.Int("limit", 20, "messages per page")
	pages := flag.Int("pages", 1, "number of pages to dump")
	inspect := flag.Int("inspect", 0, "serve the HTML archive inspector on this port")
	flag.Parse()

	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if the client holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer db.Close()

	archive := repositories.NewMessageArchive(db, logger, limit)
	conversation := chat.ConversationID(config.ConversationID)

	// 3. Walk the archive newest-first and render each page.
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Message", "Read"})

	var cursor *string
	total := 0
	for page := 0; page < *pages; page++ {
		messages, nextCursor, err := archive.Recent(conversation, cursor)
		if err != nil {
			log.Fatalf("Failed to read archive: %v", err)
		}
		if len(messages) == 0 {
			break
		}
		for _, m := range messages {
			table.Append([]string{
				m.CreatedAt.Format(time.DateTime),
				string(m.SenderID),
				m.Content,
				lo.Ternary(m.IsRead, "yes", "no"),
			})
		}
		total += len(messages)
		cursor = nextCursor
	}

	fmt.Printf("Conversation %s: %d archived message(s)\n", conversation, total)
	table.Render()

	// 4. Optionally serve the raw-key inspector until interrupted.
	if *inspect > 0 {
		internal.StartDebugServer(db, *inspect, nil, func() map[string]any {
			return map[string]any{
				"conversation": string(conversation),
				"dumped":       total,
			}
		})
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
	}
}
