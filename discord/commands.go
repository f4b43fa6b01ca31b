package discord

import (
	"context"
	"log/slog"

	"github.com/Thurler/guiltbot/announce"
	"github.com/Thurler/guiltbot/telemetry"
)

// LiveCommand lists currently live matching streams on demand. The run is
// forced: the dedup ledger is neither consulted nor mutated, so asking twice
// in a row gives the same answer and never suppresses a later automatic
// announcement.
func LiveCommand(p *announce.Pipeline) Command {
	return func(ctx context.Context, b *Bot, _ []string) {
		log := telemetry.LoggerWithCorr(ctx)
		anns, err := p.Run(ctx, true)
		if err != nil {
			log.Error("live command failed", slog.Any("err", err))
			if err := b.SendText("Error finding streams"); err != nil {
				log.Error("reply send failed", slog.Any("err", err))
			}
			return
		}
		if len(anns) == 0 {
			if err := b.SendText("No relevant streams found"); err != nil {
				log.Error("reply send failed", slog.Any("err", err))
			}
			return
		}
		for _, msg := range p.BuildMessages(ctx, anns) {
			if err := b.SendAnnouncement(msg); err != nil {
				log.Error("announcement send failed", slog.Any("err", err))
			}
		}
	}
}
