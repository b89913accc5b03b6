package trigger

import (
	"sync"
	"time"

	"github.com/mr1hm/safety-concierge/internal/clock"
)

const DefaultHoldDuration = time.Second

// HoldButton fires its callback once the button has been held for the full
// hold duration. Releasing early resets progress.
type HoldButton struct {
	mu        sync.Mutex
	clock     clock.Clock
	hold      time.Duration
	onTrigger func()

	pressed   bool
	pressedAt time.Time
	timer     clock.Timer
	gen       uint64
}

func NewHoldButton(clk clock.Clock, hold time.Duration, onTrigger func()) *HoldButton {
	if clk == nil {
		clk = clock.Real()
	}
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	return &HoldButton{clock: clk, hold: hold, onTrigger: onTrigger}
}

// Press starts a hold. Pressing an already held button does nothing.
func (b *HoldButton) Press() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pressed {
		return
	}
	b.pressed = true
	b.pressedAt = b.clock.Now()
	b.gen++
	gen := b.gen
	b.timer = b.clock.AfterFunc(b.hold, func() { b.complete(gen) })
}

// Release ends a hold. Before completion it cancels the pending trigger.
func (b *HoldButton) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// Progress reports how far the current hold is, from 0 to 1.
func (b *HoldButton) Progress() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.pressed {
		return 0
	}
	p := float64(b.clock.Now().Sub(b.pressedAt)) / float64(b.hold)
	if p > 1 {
		p = 1
	}
	return p
}

func (b *HoldButton) complete(gen uint64) {
	b.mu.Lock()
	if !b.pressed || gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.resetLocked()
	b.mu.Unlock()

	if b.onTrigger != nil {
		b.onTrigger()
	}
}

func (b *HoldButton) resetLocked() {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pressed = false
	b.pressedAt = time.Time{}
}
