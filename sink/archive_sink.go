package sink

import (
	"context"
	"fmt"
	"log/slog"

	"staychat/domain/event"
	"staychat/repositories"
)

// ArchiveSink persists every accepted message to the local archive and,
// when an index is attached, makes it searchable.
type ArchiveSink struct {
	archive repositories.IMessageArchive
	index   *repositories.MessageIndex
	log     *slog.Logger
}

func NewArchiveSink(archive repositories.IMessageArchive,
	index *repositories.MessageIndex, log *slog.Logger) ArchiveSink {
	return ArchiveSink{archive: archive, index: index, log: log}
}

func (s ArchiveSink) Consume(_ context.Context, e event.SessionEvent) error {
	switch evt := e.(type) {
	case event.MessageAccepted:
		if err := s.archive.Store(evt.Message); err != nil {
			return fmt.Errorf("archive store: %w", err)
		}
		if s.index != nil {
			if err := s.index.Index(evt.Message); err != nil {
				return fmt.Errorf("archive index: %w", err)
			}
		}
		return nil
	default:
		s.log.Debug(fmt.Sprintf("Not archived event : %v", evt))
		return nil
	}
}
