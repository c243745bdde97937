package scanning

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// errPoolClosed is returned by Acquire once the pool has been closed.
var errPoolClosed = stderrors.New("scan slot pool is closed")

// ResourceManager bounds how many nmap processes may run at once.
type ResourceManager interface {
	// Acquire blocks until a slot is free for scanID or ctx is done.
	Acquire(ctx context.Context, scanID string) error

	// Release frees the slot held by scanID.
	Release(scanID string)

	GetActiveScans() int
	GetAvailableSlots() int

	// OldestScan returns how long the longest running scan has been active.
	OldestScan() time.Duration

	Close() error
}

// SlotPool is a ResourceManager with a fixed number of scan slots. Each held
// slot remembers when its scan started.
type SlotPool struct {
	slots chan struct{}

	mu      sync.RWMutex
	started map[string]time.Time
	closed  bool
}

// NewSlotPool creates a pool with size slots. Sizes below one become one.
func NewSlotPool(size int) *SlotPool {
	return &SlotPool{
		slots:   make(chan struct{}, max(size, 1)),
		started: make(map[string]time.Time),
	}
}

func (p *SlotPool) Acquire(ctx context.Context, scanID string) error {
	if p.isClosed() {
		return errPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		<-p.slots
		return errPoolClosed
	}
	p.started[scanID] = time.Now()
	return nil
}

// Release is a no-op for IDs that hold no slot.
func (p *SlotPool) Release(scanID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.started[scanID]; !ok {
		return
	}
	delete(p.started, scanID)
	<-p.slots
}

func (p *SlotPool) GetActiveScans() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.started)
}

func (p *SlotPool) GetAvailableSlots() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cap(p.slots) - len(p.started)
}

// OldestScan is zero while no scan holds a slot.
func (p *SlotPool) OldestScan() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var oldest time.Duration
	for _, at := range p.started {
		oldest = max(oldest, time.Since(at))
	}
	return oldest
}

// Close rejects further Acquire calls. Scans already holding a slot keep it
// until they Release.
func (p *SlotPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *SlotPool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
