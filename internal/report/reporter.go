package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/gsmon/internal/console"
	"github.com/loykin/gsmon/internal/metrics"
	"github.com/loykin/gsmon/internal/telemetry"
)

// Reporter queries the console for due reports and publishes them.
type Reporter struct {
	console console.Execer
	pub     telemetry.DataPublisher
	gsname  string
	log     *slog.Logger
}

func NewReporter(c console.Execer, pub telemetry.DataPublisher, gsname string, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{console: c, pub: pub, gsname: gsname, log: log}
}

// Dispatch runs whichever reports are due at now. Games are checked before
// status. Without a publisher nothing is queried.
func (r *Reporter) Dispatch(ctx context.Context, s *Schedule, now time.Time) {
	if r.pub == nil || r.console == nil {
		return
	}
	if s.DueGames(now) {
		r.games(ctx, now)
	}
	if s.DueStatus(now) {
		r.status(ctx, now)
	}
}

func (r *Reporter) games(ctx context.Context, now time.Time) {
	out, ok := r.console.Exec(ctx, CommandGames)
	if !ok || out == "" {
		metrics.IncReport(TypeGames, false)
		return
	}
	games := ParseGames(out)
	metrics.IncReport(TypeGames, true)
	r.log.Debug("publishing games", "count", len(games))
	r.pub.PublishData(ctx, telemetry.NewData(now, TypeGames, r.gsname, games))
}

func (r *Reporter) status(ctx context.Context, now time.Time) {
	out, ok := r.console.Exec(ctx, CommandStatus)
	if !ok || out == "" {
		metrics.IncReport(TypeStatus, false)
		return
	}
	st, err := ParseStatus(out)
	if err != nil {
		metrics.IncReport(TypeStatus, false)
		r.log.Warn("unexpected status output", "error", err)
		return
	}
	metrics.IncReport(TypeStatus, true)
	r.pub.PublishData(ctx, telemetry.NewData(now, TypeStatus, r.gsname, st))
}
