package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"stataggg-chat/contract"
	"stataggg-chat/observability"
	"stataggg-chat/repositories"

	"github.com/shirou/gopsutil/process"
)

const DefaultHeartbeatInterval = time.Minute

// HeartbeatWorker reports the state of the room at a fixed pace:
// connections, distinct online users, size of the log and process footprint.
type HeartbeatWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	store    repositories.IMessageRepository
	metrics  *observability.Metrics
	interval time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	store repositories.IMessageRepository,
	metrics *observability.Metrics,
	interval time.Duration,
) *HeartbeatWorker {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatWorker{
		log:      log,
		registry: registry,
		store:    store,
		metrics:  metrics,
		interval: interval,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.beat(ctx, p)
		}
	}
}

func (w *HeartbeatWorker) beat(ctx context.Context, p *process.Process) {
	stored, err := w.store.Count(ctx)
	if err != nil {
		w.metrics.StoreFailed("count")
		w.log.Error("Failed to count stored messages", "error", err)
	} else {
		w.metrics.SetStored(stored)
	}

	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Debug("Failed to collect self stats", "error", err)
	}
	w.log.Info("Heartbeat",
		"connections", w.registry.Len(),
		"online_users", len(w.registry.Online()),
		"stored_messages", stored,
		"rss_bytes", rss,
		"cpu_percent", cpu,
	)
}

// selfStats retrieves memory and CPU usage of the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return memInfo.RSS, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
