package cover

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/jkorpela/bookstand/internal/catalog"
)

// LoadState tracks where a display card is in its cover lifecycle.
type LoadState int

const (
	// StateUnknown means the card was never requested or was discarded.
	StateUnknown LoadState = iota
	// StatePlaceholder means the placeholder is showing and background
	// resolution has not started yet.
	StatePlaceholder
	// StateLoading means resolution is running in the background.
	StateLoading
	// StateResolved means the final cover was delivered.
	StateResolved
	// StateTimedOut means the watchdog fired while resolution was still
	// running. Resolution is not cancelled; a late result still arrives.
	StateTimedOut
)

func (s LoadState) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StateLoading:
		return "loading"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Result is a finished resolution handed back to the rendering loop.
type Result struct {
	CardID string
	Book   catalog.Book
	Image  image.Image
}

const (
	// defaultStartDelay spaces background fetches away from card
	// construction, so a burst of new cards doesn't open a burst of
	// connections in the same instant.
	defaultStartDelay = 100 * time.Millisecond
	// defaultWatchdog is advisory only: it logs slow resolutions, it
	// does not cancel them.
	defaultWatchdog = 5 * time.Second

	defaultQueueSize = 64
)

// Coordinator schedules background cover resolution for display cards and
// hands results back through a single channel. Only the loop that owns
// rendering may drain Results; that is the whole thread-safety story for
// the UI side.
type Coordinator struct {
	svc        *Service
	results    chan Result
	startDelay time.Duration
	watchdog   time.Duration

	mu        sync.Mutex
	states    map[string]LoadState
	discarded map[string]bool

	done     chan struct{}
	doneOnce sync.Once
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithStartDelay overrides the delay between Request and the background
// fetch kicking off.
func WithStartDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d >= 0 {
			c.startDelay = d
		}
	}
}

// WithWatchdog overrides the advisory slow-resolution timeout.
func WithWatchdog(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.watchdog = d
		}
	}
}

// NewCoordinator creates a coordinator delivering into a buffered result
// channel.
func NewCoordinator(svc *Service, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		svc:        svc,
		results:    make(chan Result, defaultQueueSize),
		startDelay: defaultStartDelay,
		watchdog:   defaultWatchdog,
		states:     make(map[string]LoadState),
		discarded:  make(map[string]bool),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Results is the channel finished covers arrive on. It must be drained by
// exactly one loop, the one that owns rendering.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Request returns a placeholder for immediate display and schedules
// background resolution of the real cover. The final image arrives on
// Results tagged with cardID, unless the card is discarded first.
func (c *Coordinator) Request(ctx context.Context, cardID string, book catalog.Book, width, height int) image.Image {
	c.mu.Lock()
	c.states[cardID] = StatePlaceholder
	delete(c.discarded, cardID)
	c.mu.Unlock()

	time.AfterFunc(c.startDelay, func() {
		c.resolve(ctx, cardID, book, width, height)
	})

	return c.svc.Placeholder(book, width, height)
}

// Discard marks a card as gone (scrolled out, closed). A resolution
// already in flight runs to completion, but its result is dropped instead
// of being delivered.
func (c *Coordinator) Discard(cardID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.discarded[cardID] = true
	delete(c.states, cardID)
}

// State returns the card's current lifecycle state.
func (c *Coordinator) State(cardID string) LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.states[cardID]
}

// Close stops deliveries. In-flight resolutions run to completion (there
// is no cancellation of the fetch itself) and their results are dropped.
func (c *Coordinator) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Coordinator) resolve(ctx context.Context, cardID string, book catalog.Book, width, height int) {
	c.mu.Lock()
	if c.discarded[cardID] {
		c.mu.Unlock()
		return
	}
	c.states[cardID] = StateLoading
	c.mu.Unlock()

	started := time.Now()
	dog := time.AfterFunc(c.watchdog, func() {
		c.mu.Lock()
		if c.states[cardID] == StateLoading {
			c.states[cardID] = StateTimedOut
		}
		c.mu.Unlock()
		slog.Warn("Cover resolution still running past watchdog",
			"card", cardID, "title", book.Title, "elapsed", time.Since(started))
	})
	defer dog.Stop()

	img := c.svc.Resolve(ctx, book, width, height)
	c.deliver(Result{CardID: cardID, Book: book, Image: img})
}

func (c *Coordinator) deliver(r Result) {
	c.mu.Lock()
	if c.discarded[r.CardID] {
		c.mu.Unlock()
		slog.Debug("Dropping cover for discarded card", "card", r.CardID, "title", r.Book.Title)
		return
	}
	c.states[r.CardID] = StateResolved
	c.mu.Unlock()

	select {
	case c.results <- r:
	case <-c.done:
		slog.Debug("Dropping cover, coordinator closed", "card", r.CardID)
	}
}
