package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

// MeasurementBusStats is the measurement the reporter writes.
const MeasurementBusStats = "bus_stats"

const defaultInterval = 30 * time.Second

// StatsSource provides bus statistics. *mqtt.Service satisfies it.
type StatsSource interface {
	Stats() mqtt.Stats
}

// PointWriter writes one time-series point. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reporter periodically writes bus statistics.
type Reporter struct {
	source   StatsSource
	writer   PointWriter
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	reports uint64
}

// NewReporter creates a reporter. A non-positive interval uses 30s.
func NewReporter(source StatsSource, writer PointWriter, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reporter{
		source:   source,
		writer:   writer,
		interval: interval,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (r *Reporter) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start begins reporting until ctx is cancelled or Stop is called.
// Calling Start on a running reporter does nothing.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)

	r.logger.Info("telemetry reporter started", "interval", r.interval)
}

// Stop halts reporting and writes a final point.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.Report()
	r.logger.Info("telemetry reporter stopped")
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report writes one bus_stats point now.
func (r *Reporter) Report() {
	st := r.source.Stats()

	r.writer.WritePoint(MeasurementBusStats,
		map[string]string{
			"client_id": st.ClientID,
			"broker":    st.Broker,
		},
		StatsFields(st),
	)

	r.mu.Lock()
	r.reports++
	r.mu.Unlock()

	r.logger.Debug("bus stats reported",
		"connected", st.Connected,
		"received", st.MessagesReceived,
		"published", st.MessagesPublished,
	)
}

// Reports returns how many points have been written.
func (r *Reporter) Reports() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports
}

// StatsFields flattens a stats snapshot into point fields.
func StatsFields(st mqtt.Stats) map[string]any {
	return map[string]any{
		"connected":          st.Connected,
		"state":              st.State,
		"messages_received":  st.MessagesReceived,
		"messages_published": st.MessagesPublished,
		"publish_failures":   st.PublishFailures,
		"reconnect_attempts": st.ReconnectAttempts,
		"messages_dropped":   st.MessagesDropped,
		"handler_errors":     st.HandlerErrors,
		"handlers":           st.Handlers,
		"queue_depth":        st.QueueDepth,
	}
}
