package announce

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Thurler/guiltbot/telemetry"
)

// Sender delivers formatted announcements to the configured chat channel.
type Sender interface {
	SendAnnouncement(msg Message) error
}

// StartStreamPoller runs the pipeline every interval until ctx is cancelled,
// announcing new streams to the sender. One run happens immediately at
// startup. The timer is fire-and-forget: a slow poll delays the next one, no
// drift compensation. afterRun, when non-nil, is invoked with the outcome of
// each cycle (used for /status bookkeeping).
func StartStreamPoller(ctx context.Context, p *Pipeline, sender Sender, interval time.Duration, afterRun func(ctx context.Context, announced int, err error)) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	slog.Info("stream poller started", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pollOnce(ctx, p, sender, afterRun)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, p *Pipeline, sender Sender, afterRun func(ctx context.Context, announced int, err error)) {
	corr := uuid.New().String()
	ctx = telemetry.WithCorrelation(ctx, corr)
	log := telemetry.LoggerWithCorr(ctx)

	ctx, span := telemetry.StartSpan(ctx, "poll_streams")
	defer span.End()

	telemetry.PollCycles.Inc()
	start := time.Now()
	log.Info("looking for new streams")

	anns, err := p.Run(ctx, false)
	if err != nil {
		// "no result" is distinct from "zero eligible": the former is an
		// upstream failure, logged and skipped for this cycle only.
		telemetry.PollFailures.Inc()
		telemetry.RecordSpanError(span, err)
		log.Error("poll failed", slog.Any("err", err))
		if afterRun != nil {
			afterRun(ctx, 0, err)
		}
		return
	}
	telemetry.PollDuration.Observe(time.Since(start).Seconds())
	if len(anns) == 0 {
		log.Info("no new streams found")
		if afterRun != nil {
			afterRun(ctx, 0, nil)
		}
		return
	}
	log.Info("found new streams", slog.Int("count", len(anns)))
	for _, msg := range p.BuildMessages(ctx, anns) {
		if err := sender.SendAnnouncement(msg); err != nil {
			log.Error("announcement send failed", slog.Any("err", err))
			continue
		}
		telemetry.StreamsAnnounced.Inc()
	}
	if afterRun != nil {
		afterRun(ctx, len(anns), nil)
	}
}
