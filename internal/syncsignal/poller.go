package syncsignal

import (
	"context"
	"log/slog"
	"time"
)

// Source yields the current domain versions. *Repository implements it.
type Source interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// ChangeFunc reacts to a changed domain. Callbacks must be quick or spawn their
// own work; the poller calls them inline.
type ChangeFunc func(ctx context.Context, domain string)

// Poller watches domain versions and fires handlers when one advances.
// Snapshot failures are logged and retried on the next tick.
type Poller struct {
	source   Source
	interval time.Duration
	handlers map[string][]ChangeFunc
	seen     map[string]int64
}

func NewPoller(source Source, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:   source,
		interval: interval,
		handlers: make(map[string][]ChangeFunc),
	}
}

// OnChange registers fn for a domain. Register before Run; the poller does
// not lock its handler table.
func (p *Poller) OnChange(domain string, fn ChangeFunc) {
	p.handlers[domain] = append(p.handlers[domain], fn)
}

// Run polls until ctx is cancelled. The first snapshot only establishes the
// baseline, so a restart does not replay every historical change.
func (p *Poller) Run(ctx context.Context) error {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		slog.Warn("syncsignal: initial snapshot", "error", err)
		snap = map[string]int64{}
	}
	p.seen = snap

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		slog.Warn("syncsignal: snapshot", "error", err)
		return
	}
	for domain, version := range snap {
		if version <= p.seen[domain] {
			continue
		}
		p.seen[domain] = version
		slog.Debug("syncsignal: domain changed", "domain", domain, "version", version)
		for _, fn := range p.handlers[domain] {
			fn(ctx, domain)
		}
	}
}
