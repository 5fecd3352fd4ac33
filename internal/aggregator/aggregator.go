package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xm-labs/orderbook-aggregator/internal/exchange"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// State is one of the Aggregator's four lifecycle states (spec.md §4.3).
type State int

const (
	// Connecting is the initial state: attempting to establish adapter
	// streams.
	Connecting State = iota
	// Running is steady-state: merging updates and emitting Summaries.
	Running
	// Degraded names the condition of fewer than MinSources adapters
	// still live. Run never reports it: when the live count falls below
	// MinSources the Aggregator moves straight to Terminated.
	Degraded
	// Terminated means the Aggregator has shut down and will never
	// emit again.
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Degraded:
		return "degraded"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Defaults from spec.md §4.3 / §5's resource caps.
const (
	DefaultMaxAttempts  = 5
	DefaultMinSources   = 2
	DefaultDiagInterval = 7
)

// Config configures one Aggregator instance.
type Config struct {
	Pair         types.TradedPair
	Depth        int
	MaxAttempts  int
	MinSources   int
	DiagInterval int

	// ReceiveTolerance is reserved per spec.md §9 Open Question (b): a
	// book whose paired counterpart arrived longer ago than this could
	// be dropped instead of merged. Not enforced by Run/connect/pump —
	// do not guess a value or an enforcement point.
	ReceiveTolerance time.Duration

	// OnConnectAttempt, if set, is called once per adapter connect
	// attempt (success or failure), letting callers export a metric
	// without the aggregator package depending on Prometheus directly.
	OnConnectAttempt func(exchangeName string)
}

func (c Config) withDefaults() Config {
	if c.Depth <= 0 {
		c.Depth = types.DefaultDepth
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MinSources <= 0 {
		c.MinSources = DefaultMinSources
	}
	if c.DiagInterval <= 0 {
		c.DiagInterval = DefaultDiagInterval
	}
	return c
}

// sourceHealth tracks live-adapter bookkeeping under a single mutex: the
// per-source last error for diagnostics and the count of still-live
// streams, tripping a one-shot signal the first time the live count drops
// below MinSources.
type sourceHealth struct {
	mu        sync.Mutex
	lastErr   map[string]error
	live      map[string]bool
	minSource int
	tripped   bool
}

func newSourceHealth(minSources int) *sourceHealth {
	return &sourceHealth{
		lastErr:   make(map[string]error),
		live:      make(map[string]bool),
		minSource: minSources,
	}
}

func (h *sourceHealth) markLive(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live[name] = true
}

// markDown records name as no longer live and its last error, returning
// true exactly once, the first time the live count drops below
// minSource after this call.
func (h *sourceHealth) markDown(name string, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.live[name] = false
	if err != nil {
		h.lastErr[name] = err
	}

	if h.tripped {
		return false
	}
	if h.liveCountLocked() < h.minSource {
		h.tripped = true
		return true
	}
	return false
}

func (h *sourceHealth) liveCountLocked() int {
	count := 0
	for _, alive := range h.live {
		if alive {
			count++
		}
	}
	return count
}

func (h *sourceHealth) liveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.liveCountLocked()
}

func (h *sourceHealth) lastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, err := range h.lastErr {
		if err != nil {
			return err
		}
	}
	return nil
}

// Aggregator is one per-TradedPair instance of the state machine in
// spec.md §4.3: it connects to every configured adapter, merges their
// streams, and publishes Summaries on a Bus until terminated.
type Aggregator struct {
	cfg     Config
	catalog *exchange.Catalog
	bus     *Bus
	logger  *slog.Logger

	mu    sync.RWMutex
	state State

	health *sourceHealth
	cancel context.CancelFunc
}

// New constructs an Aggregator. It does not start connecting until Run
// is called.
func New(cfg Config, catalog *exchange.Catalog, logger *slog.Logger) *Aggregator {
	cfg = cfg.withDefaults()
	return &Aggregator{
		cfg:     cfg,
		catalog: catalog,
		bus:     NewBus(),
		logger:  logger.With("component", "aggregator", "pair", cfg.Pair.String()),
		state:   Connecting,
		health:  newSourceHealth(cfg.MinSources),
	}
}

// Bus returns the Aggregator's broadcast bus for new subscribers to
// attach to.
func (a *Aggregator) Bus() *Bus { return a.bus }

// State reports the Aggregator's current lifecycle state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Aggregator) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Run drives the Aggregator's entire lifecycle: the connect phase,
// steady-state merging, and termination. It returns once Terminated,
// either because ctx was cancelled or because too few sources remained
// live. Callers typically invoke Run in its own goroutine (the
// Subscription Registry does exactly that).
func (a *Aggregator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel

	ticks, connected := a.connect(ctx)

	if len(connected) < a.cfg.MinSources {
		a.terminate(fmt.Sprintf(
			"only %d/%d required sources connected for %s (last error: %v)",
			len(connected), a.cfg.MinSources, a.cfg.Pair, a.health.lastError(),
		))
		return
	}

	a.setState(Running)
	a.run(ctx, ticks)
}

// connect attempts to establish a stream for every adapter in the
// catalog, retrying each up to cfg.MaxAttempts times with a short
// backoff. It returns a fan-in channel merging every successful
// adapter's ticks, and the list of adapter names that connected.
func (a *Aggregator) connect(ctx context.Context) (<-chan exchange.Tick, []string) {
	adapters := a.catalog.Clone()
	merged := make(chan exchange.Tick, busBufferSize)

	var connectWG sync.WaitGroup // tracks the connect phase only
	var pumpWG sync.WaitGroup    // tracks pump goroutines for the stream's full lifetime
	var mu sync.Mutex
	var connected []string

	for _, adapter := range adapters {
		adapter := adapter
		connectWG.Add(1)
		pumpWG.Add(1)
		go func() {
			defer pumpWG.Done()

			stream, ok := a.connectWithRetry(ctx, adapter)
			if !ok {
				connectWG.Done()
				return
			}

			mu.Lock()
			connected = append(connected, adapter.Name())
			mu.Unlock()
			a.health.markLive(adapter.Name())
			connectWG.Done()

			a.pump(ctx, adapter.Name(), stream, merged)
		}()
	}

	go func() {
		pumpWG.Wait()
		close(merged)
	}()

	// Block only until every adapter has resolved its connect attempts
	// (succeeded or exhausted MAX_ATTEMPTS), not until the streams
	// themselves end. The connect phase is synchronous from the
	// caller's perspective per spec.md §4.3; steady-state pumping
	// continues in the background after connect returns.
	connectDone := make(chan struct{})
	go func() {
		connectWG.Wait()
		close(connectDone)
	}()

	select {
	case <-connectDone:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	result := make([]string, len(connected))
	copy(result, connected)
	return merged, result
}

// connectWithRetry calls StreamOrderBookForPair up to cfg.MaxAttempts
// times, per spec.md §4.3. PairNotSupported is not retried: it is a
// synchronous, permanent rejection.
func (a *Aggregator) connectWithRetry(ctx context.Context, adapter exchange.Adapter) (<-chan exchange.Tick, bool) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}

		if a.cfg.OnConnectAttempt != nil {
			a.cfg.OnConnectAttempt(adapter.Name())
		}

		stream, err := adapter.StreamOrderBookForPair(ctx, a.cfg.Pair)
		if err == nil {
			return stream, true
		}
		lastErr = err

		if !isRetryable(err) {
			break
		}

		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return nil, false
		}
	}

	// Only the error is recorded, not a trip: insufficient sources during
	// the connect phase is already handled by Run's post-connect count
	// check, cancelling now would cut short sibling adapters still
	// mid-retry, and the one-shot trip stays armed for pump.
	a.health.mu.Lock()
	a.health.lastErr[adapter.Name()] = lastErr
	a.health.mu.Unlock()
	a.logger.Warn("adapter permanently excluded after exhausting connect attempts",
		"exchange", adapter.Name(), "attempts", a.cfg.MaxAttempts, "error", lastErr)
	return nil, false
}

func isRetryable(err error) bool {
	return !errors.Is(err, exchange.ErrPairNotSupported)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 250 * time.Millisecond
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// pump forwards one adapter's ticks onto the shared merged channel,
// tagging the aggregator's health tracker live/down on stream end. A
// stream end that drops the live count below MinSources cancels the run
// context immediately, so termination does not wait on a tick from a
// surviving source that may never arrive.
func (a *Aggregator) pump(ctx context.Context, name string, stream <-chan exchange.Tick, merged chan<- exchange.Tick) {
	for {
		select {
		case tick, ok := <-stream:
			if !ok {
				a.logger.Warn("adapter stream ended", "exchange", name)
				if a.health.markDown(name, nil) {
					a.cancel()
				}
				return
			}
			select {
			case merged <- tick:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// run is the Running-state steady loop: it maintains latest-book-per-
// source, drains and merges once at least two distinct sources are
// present, and publishes. It returns when the merged channel closes or
// the live source count drops below MinSources.
func (a *Aggregator) run(ctx context.Context, ticks <-chan exchange.Tick) {
	latest := make(map[string]exchange.Tick)
	diagCount := 0

	for {
		select {
		case <-ctx.Done():
			if a.health.liveCount() < a.cfg.MinSources {
				a.terminate(fmt.Sprintf(
					"live source count dropped below %d for %s (last error: %v)",
					a.cfg.MinSources, a.cfg.Pair, a.health.lastError(),
				))
			} else {
				a.terminate(fmt.Sprintf("context cancelled for %s", a.cfg.Pair))
			}
			return

		case tick, ok := <-ticks:
			if !ok {
				a.terminate(fmt.Sprintf("all adapter streams ended for %s", a.cfg.Pair))
				return
			}

			latest[tick.Book.Source()] = tick
			diagCount++
			if diagCount%a.cfg.DiagInterval == 0 {
				a.logger.Debug("tick received", "exchange", tick.Book.Source(), "pair", a.cfg.Pair)
			}

			if a.health.liveCount() < a.cfg.MinSources {
				a.terminate(fmt.Sprintf(
					"live source count dropped below %d for %s (last error: %v)",
					a.cfg.MinSources, a.cfg.Pair, a.health.lastError(),
				))
				return
			}

			if len(latest) < 2 {
				continue
			}

			books := make([]types.OrderBook, 0, len(latest))
			for _, t := range latest {
				books = append(books, t.Book)
			}
			// Draining after every emission prevents blending stale
			// books with new ones in subsequent emissions (spec.md
			// §4.3).
			latest = make(map[string]exchange.Tick)

			summary, err := Merge(books, a.cfg.Depth)
			if err != nil {
				a.logger.Debug("skipped tick, insufficient depth", "pair", a.cfg.Pair, "error", err)
				continue
			}
			a.bus.Publish(Update{Summary: summary})
		}
	}
}

func (a *Aggregator) terminate(reason string) {
	a.setState(Terminated)
	a.logger.Error("aggregator terminated", "pair", a.cfg.Pair, "reason", reason)
	a.bus.Publish(Update{Err: fmt.Errorf("%s", reason)})
	a.bus.Close()
}
