package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rcourtman/podsmon/internal/engine"
	perrors "github.com/rcourtman/podsmon/internal/errors"
	"github.com/rcourtman/podsmon/internal/resources"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 10 * time.Second
	debounceWindow  = 250 * time.Millisecond
	hintBuffer      = 64
)

var (
	newTickerFn = time.NewTicker
	newTimerFn  = time.NewTimer
	nowFn       = time.Now
)

// Source produces engine listings. *engine.Client implements it.
type Source interface {
	Host() string
	Snapshot(ctx context.Context, withPods bool) (engine.Snapshot, error)
	Watch(ctx context.Context, out chan<- engine.Hint) error
}

// Observer subscribes to a collection's events. The metrics recorder and the
// websocket hub implement it.
type Observer interface {
	Attach(o *resources.Observable)
}

// RefreshObserver is told about every refresh attempt.
type RefreshObserver interface {
	ObserveRefresh(took time.Duration, err error)
	SetPodsSupported(ok bool)
}

// Config controls the monitor loop.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration // per refresh
	WatchEvents bool
	Strict      bool
	Logger      *zerolog.Logger
	Observers   []Observer
	Refresh     RefreshObserver
}

// Monitor owns the container, pod and image collections of one engine and
// keeps them in sync. Only the goroutine running Run (or Refresh) touches the
// collections; other goroutines read the published State.
type Monitor struct {
	cfg    Config
	source Source
	logger zerolog.Logger

	containers *resources.ContainerList
	pods       *resources.PodList
	images     *resources.ImageList

	podsEnabled bool
	hints       chan engine.Hint

	mu    sync.RWMutex
	state State
}

// New builds a monitor over source and attaches cfg.Observers to every
// collection.
func New(source Source, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("engine_host", source.Host()).Logger()

	opts := resources.Options{Strict: cfg.Strict, Logger: &logger}
	m := &Monitor{
		cfg:         cfg,
		source:      source,
		logger:      logger,
		containers:  resources.NewContainerList(opts),
		pods:        resources.NewPodList(opts),
		images:      resources.NewImageList(opts),
		podsEnabled: true,
		hints:       make(chan engine.Hint, hintBuffer),
	}

	for _, obs := range cfg.Observers {
		for _, o := range m.observables() {
			obs.Attach(o)
		}
	}
	if cfg.Refresh != nil {
		cfg.Refresh.SetPodsSupported(true)
	}

	m.state = State{Engine: source.Host(), PodsSupported: true}
	m.publish()
	return m
}

func (m *Monitor) observables() []*resources.Observable {
	return []*resources.Observable{m.containers.Observable, m.pods.Observable, m.images.Observable}
}

// Run refreshes immediately, then on every interval tick and shortly after
// engine event hints, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := newTickerFn(m.cfg.Interval)
	defer ticker.Stop()

	debounce := newTimerFn(debounceWindow)
	stopTimer(debounce)
	defer stopTimer(debounce)
	pending := false

	m.refreshLogged(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if pending {
				stopTimer(debounce)
				pending = false
			}
			m.refreshLogged(ctx, "interval")
		case hint := <-m.hints:
			if hint.Kind == resources.KindPod && !m.podsEnabled {
				continue
			}
			if !pending {
				debounce.Reset(debounceWindow)
				pending = true
			}
		case <-debounce.C:
			pending = false
			m.refreshLogged(ctx, "event")
		}
	}
}

// Watch forwards engine events to Run as refresh hints. A broken event stream
// is re-opened after one refresh interval. It returns when ctx is cancelled.
func (m *Monitor) Watch(ctx context.Context) error {
	if !m.cfg.WatchEvents {
		<-ctx.Done()
		return nil
	}

	for {
		err := m.source.Watch(ctx, m.hints)
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn().Err(err).Dur("retry_in", m.cfg.Interval).Msg("Engine event stream ended; polling only until it reconnects")

		timer := newTimerFn(m.cfg.Interval)
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-timer.C:
		}
	}
}

func (m *Monitor) refreshLogged(ctx context.Context, reason string) {
	if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn().Err(err).Str("reason", reason).Msg("Engine refresh failed; keeping previous state")
	}
}

// Refresh lists the engine once and reconciles every collection. On failure
// the collections keep their previous contents.
func (m *Monitor) Refresh(ctx context.Context) error {
	refreshID := uuid.NewString()
	logger := m.logger.With().Str("refresh_id", refreshID).Logger()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := nowFn()
	snap, err := m.source.Snapshot(ctx, m.podsEnabled)
	took := nowFn().Sub(start)
	if m.cfg.Refresh != nil {
		m.cfg.Refresh.ObserveRefresh(took, err)
	}
	if err != nil {
		m.mu.Lock()
		m.state.LastError = err.Error()
		m.mu.Unlock()
		return err
	}

	var syncErrs []error
	syncErrs = append(syncErrs, m.containers.Sync(snap.Containers))
	syncErrs = append(syncErrs, m.images.Sync(snap.Images))

	if m.podsEnabled {
		switch {
		case snap.PodsErr == nil:
			syncErrs = append(syncErrs, m.pods.Sync(snap.Pods))
		case errors.Is(snap.PodsErr, perrors.ErrUnsupported):
			logger.Info().Err(snap.PodsErr).Msg("Engine has no pod support; pod tracking disabled")
			m.disablePods()
		default:
			logger.Warn().Err(snap.PodsErr).Msg("Pod listing failed; keeping previous pods")
		}
	}

	if err := errors.Join(syncErrs...); err != nil {
		logger.Error().Err(err).Msg("Collection sync reported contract violations")
	}

	logger.Debug().
		Int("containers", m.containers.Len()).
		Int("pods", m.pods.Len()).
		Int("images", m.images.Len()).
		Dur("took", took).
		Msg("Engine refresh complete")

	m.mu.Lock()
	m.state.LastError = ""
	m.state.LastRefresh = nowFn()
	m.mu.Unlock()
	m.publish()
	return nil
}

func (m *Monitor) disablePods() {
	m.podsEnabled = false
	if err := m.pods.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear pod collection")
	}
	if m.cfg.Refresh != nil {
		m.cfg.Refresh.SetPodsSupported(false)
	}
}

// Containers returns the container collection. Callers must stay on the
// monitor goroutine.
func (m *Monitor) Containers() *resources.ContainerList { return m.containers }

// Pods returns the pod collection.
func (m *Monitor) Pods() *resources.PodList { return m.pods }

// Images returns the image collection.
func (m *Monitor) Images() *resources.ImageList { return m.images }

// Close releases every collection subscription.
func (m *Monitor) Close() {
	for _, o := range m.observables() {
		o.Close()
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
