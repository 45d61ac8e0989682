package resilience

import (
	"sync"
	"time"
)

// Batcher coalesces items into flushes bounded by size and delay. The flush
// callback runs on its own goroutine with items in arrival order.
type Batcher[T any] struct {
	maxSize int
	delay   time.Duration
	flush   func([]T)

	mu     sync.Mutex
	items  []T
	timer  *time.Timer
	closed bool
}

// NewBatcher builds a batcher. maxSize <= 0 defaults to 10, delay <= 0 to
// 100ms.
func NewBatcher[T any](maxSize int, delay time.Duration, flush func([]T)) *Batcher[T] {
	if maxSize <= 0 {
		maxSize = 10
	}

	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	return &Batcher[T]{
		maxSize: maxSize,
		delay:   delay,
		flush:   flush,
	}
}

// Add queues one item. A full batch flushes immediately; otherwise the delay
// timer starts with the first queued item.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.items = append(b.items, item)

	if len(b.items) >= b.maxSize {
		b.flushLocked()

		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.delay, func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			b.flushLocked()
		})
	}
}

// Flush forces any queued items out now.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.flushLocked()
}

// Close flushes the tail and rejects further items.
func (b *Batcher[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.flushLocked()
	b.closed = true
}

func (b *Batcher[T]) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	if len(b.items) == 0 {
		return
	}

	batch := b.items
	b.items = nil

	go b.flush(batch)
}
