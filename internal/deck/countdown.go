package deck

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/platform/marketapi"
)

// Countdowns runs one repeating timer per mounted card. Each tick recomputes
// the countdown from the card's absolute close time, so a suspended process
// shows the right value as soon as it resumes.
type Countdowns struct {
	ctx      context.Context
	interval time.Duration
	now      func() time.Time
	emit     func(marketID, text string)

	mu     sync.Mutex
	timers map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewCountdowns creates a timer set bound to ctx. emit is called from timer
// goroutines and must be safe for concurrent use.
func NewCountdowns(ctx context.Context, interval time.Duration, emit func(marketID, text string)) *Countdowns {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdowns{
		ctx:      ctx,
		interval: interval,
		now:      time.Now,
		emit:     emit,
		timers:   make(map[string]context.CancelFunc),
	}
}

// Sync mounts timers for cards not yet tracked and cancels timers for cards
// no longer in mounted.
func (c *Countdowns) Sync(mounted []domain.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keep := make(map[string]struct{}, len(mounted))
	for _, m := range mounted {
		keep[m.ID] = struct{}{}
		if _, running := c.timers[m.ID]; running {
			continue
		}
		ctx, cancel := context.WithCancel(c.ctx)
		c.timers[m.ID] = cancel
		c.wg.Add(1)
		go c.run(ctx, m)
	}
	for id, cancel := range c.timers {
		if _, ok := keep[id]; !ok {
			cancel()
			delete(c.timers, id)
		}
	}
}

// Active returns the number of mounted timers.
func (c *Countdowns) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels every timer and waits for them to exit.
func (c *Countdowns) Stop() {
	c.mu.Lock()
	for id, cancel := range c.timers {
		cancel()
		delete(c.timers, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Countdowns) run(ctx context.Context, m domain.Market) {
	defer c.wg.Done()

	c.emit(m.ID, marketapi.Countdown(m, c.now()))
	// Cards without a parseable close time never change.
	if m.ClosingAt == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text := marketapi.Countdown(m, c.now())
			if ctx.Err() != nil {
				return
			}
			c.emit(m.ID, text)
			if !c.now().Before(*m.ClosingAt) {
				return
			}
		}
	}
}
