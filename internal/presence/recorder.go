package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/consultease-core/internal/consultation"
	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

const (
	// storeTimeout bounds one repository call from the dispatch goroutine.
	storeTimeout = 5 * time.Second

	defaultPruneInterval = time.Hour

	notifyQoS byte = 1
)

// Bus is the part of the message bus the recorder needs. *mqtt.Service
// satisfies it.
type Bus interface {
	RegisterHandler(pattern string, handler mqtt.MessageHandler) (mqtt.HandlerID, error)
	UnregisterHandler(id mqtt.HandlerID)
	PublishContext(ctx context.Context, topic string, value any, qos byte) error
}

// PointWriter receives every availability observation. *influxdb.Client
// satisfies it.
type PointWriter interface {
	WritePresence(facultyID int, present bool, status, source string, at time.Time)
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

// RecorderStats counts what the recorder has processed since Start.
type RecorderStats struct {
	Observations uint64 `json:"observations"`
	Changes      uint64 `json:"changes"`
	Heartbeats   uint64 `json:"heartbeats"`
	Rejected     uint64 `json:"rejected"`
	Pruned       uint64 `json:"pruned"`
}

// Recorder subscribes to desk unit presence topics, persists what they
// report, and announces availability changes to the UI.
//
// Thread Safety:
//   - Start, Stop and OnChange are safe to call from any goroutine.
//   - HandleMessage runs on the bus dispatch goroutine.
type Recorder struct {
	bus        Bus
	repo       Repository
	points     PointWriter
	logger     Logger
	topics     mqtt.Topics
	retention  time.Duration
	pruneEvery time.Duration

	mu        sync.Mutex
	ids       []mqtt.HandlerID
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	listeners []func(Presence)

	observations atomic.Uint64
	changes      atomic.Uint64
	heartbeats   atomic.Uint64
	rejected     atomic.Uint64
	pruned       atomic.Uint64
}

// NewRecorder creates a recorder. History older than
// cfg.HistoryRetention is pruned hourly; zero keeps everything.
func NewRecorder(bus Bus, repo Repository, cfg config.PresenceConfig) *Recorder {
	return &Recorder{
		bus:        bus,
		repo:       repo,
		logger:     noopLogger{},
		retention:  cfg.HistoryRetention,
		pruneEvery: defaultPruneInterval,
	}
}

// SetLogger sets the logger. Call before Start.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetPointWriter sets the time-series sink. Call before Start.
func (r *Recorder) SetPointWriter(w PointWriter) {
	r.points = w
}

// OnChange registers a callback invoked after an availability change is
// stored. Callbacks run on the dispatch goroutine and must not block.
func (r *Recorder) OnChange(fn func(Presence)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Start registers handlers for the status, mac_status and heartbeat
// channels of every faculty member and starts history pruning.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	patterns := []string{
		r.topics.AllFacultyStatus(),
		r.topics.AllFacultyMACStatus(),
		r.topics.AllFacultyHeartbeats(),
	}
	for _, pattern := range patterns {
		id, err := r.bus.RegisterHandler(pattern, r)
		if err != nil {
			for _, registered := range r.ids {
				r.bus.UnregisterHandler(registered)
			}
			r.ids = nil
			return fmt.Errorf("registering presence handler for %s: %w", pattern, err)
		}
		r.ids = append(r.ids, id)
	}

	pruneCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	if r.retention > 0 {
		r.wg.Add(1)
		go r.pruneLoop(pruneCtx)
	}

	r.started = true
	r.logger.Info("presence recorder started", "patterns", patterns, "history_retention", r.retention)
	return nil
}

// Stop unregisters the handlers and stops pruning.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	for _, id := range r.ids {
		r.bus.UnregisterHandler(id)
	}
	r.ids = nil
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("presence recorder stopped")
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Observations: r.observations.Load(),
		Changes:      r.changes.Load(),
		Heartbeats:   r.heartbeats.Load(),
		Rejected:     r.rejected.Load(),
		Pruned:       r.pruned.Load(),
	}
}

// HandleMessage implements mqtt.MessageHandler.
func (r *Recorder) HandleMessage(topic string, payload mqtt.Payload) error {
	obs, err := Interpret(topic, payload)
	if err != nil {
		r.rejected.Add(1)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if obs.Kind == KindHeartbeat {
		r.heartbeats.Add(1)
		err := r.repo.TouchHeartbeat(ctx, obs.FacultyID, obs.NTPSyncStatus, obs.ObservedAt)
		if errors.Is(err, ErrNotFound) {
			r.logger.Debug("heartbeat from faculty with no presence yet", "faculty_id", obs.FacultyID)
			return nil
		}
		return err
	}

	r.observations.Add(1)
	p, changed, err := r.repo.Upsert(ctx, obs)
	if err != nil {
		return fmt.Errorf("storing presence for faculty %d: %w", obs.FacultyID, err)
	}

	if r.points != nil {
		r.points.WritePresence(obs.FacultyID, obs.Present, obs.Status, obs.Source, obs.ObservedAt)
	}

	// Beacon loss is announced too; it carries no MAC.
	if obs.Source == SourceMAC {
		r.publishMACNotice(ctx, obs)
	}

	if !changed {
		r.logger.Debug("faculty presence unchanged", "faculty_id", p.FacultyID, "present", p.Present)
		return nil
	}

	r.changes.Add(1)
	r.logger.Info("faculty presence changed",
		"faculty_id", p.FacultyID,
		"present", p.Present,
		"status", p.Status,
		"source", p.Source,
		"sequence", p.Sequence,
	)
	r.publishChange(ctx, p)
	r.notifyListeners(p)
	return nil
}

func (r *Recorder) publishChange(ctx context.Context, p Presence) {
	present := p.Present
	update := consultation.UIUpdate{
		Type:      consultation.TypeFacultyStatusChanged,
		FacultyID: p.FacultyID,
		NewStatus: p.Status,
		Present:   &present,
		Sequence:  p.Sequence,
		Timestamp: consultation.Timestamp(p.ChangedAt),
	}
	// The first observation of a faculty member has no previous state.
	if p.Sequence > 1 {
		previous := !p.Present
		update.Previous = &previous
	}

	if err := r.bus.PublishContext(ctx, r.topics.UIConsultationUpdates(), update, notifyQoS); err != nil {
		r.logger.Warn("presence change not published", "faculty_id", p.FacultyID, "error", err)
	}
}

func (r *Recorder) publishMACNotice(ctx context.Context, obs Observation) {
	present := obs.Present
	note := consultation.SystemNotification{
		Type:        consultation.TypeFacultyMACStatus,
		FacultyID:   obs.FacultyID,
		DetectedMAC: obs.DetectedMAC,
		Present:     &present,
		Timestamp:   consultation.Timestamp(obs.ObservedAt),
	}
	if err := r.bus.PublishContext(ctx, r.topics.SystemNotifications(), note, 0); err != nil {
		r.logger.Debug("mac status notification not published", "faculty_id", obs.FacultyID, "error", err)
	}
}

func (r *Recorder) notifyListeners(p Presence) {
	r.mu.Lock()
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("presence listener panicked", "faculty_id", p.FacultyID, "panic", rec)
				}
			}()
			fn(p)
		}()
	}
}

func (r *Recorder) pruneLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pruneEvery)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	n, err := r.repo.PruneHistory(ctx, r.retention)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("presence history prune failed", "error", err)
		}
		return
	}
	r.pruned.Add(uint64(n)) // #nosec G115 -- RowsAffected is never negative
	if n > 0 {
		r.logger.Info("presence history pruned", "rows", n, "older_than", r.retention)
	}
}
