package persistence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

// PersistenceManager is a bus subscriber that writes snapshots to storage in
// batches and alerts as they arrive, off the sampling goroutine.
type PersistenceManager struct {
	storage   ports.Storage
	snapChan  chan domain.Snapshot
	alertChan chan domain.IntrusionEvent
	batchSize int
	interval  time.Duration
	enabled   bool
	dropped   int
	done      chan struct{}
	mu        sync.RWMutex
}

// NewPersistenceManager creates a new manager.
func NewPersistenceManager(storage ports.Storage, bufferSize int) *PersistenceManager {
	return &PersistenceManager{
		storage:   storage,
		snapChan:  make(chan domain.Snapshot, bufferSize),
		alertChan: make(chan domain.IntrusionEvent, bufferSize),
		batchSize: 50,
		interval:  5 * time.Second,
		enabled:   true,
		done:      make(chan struct{}),
	}
}

// OnMetrics queues a snapshot; when the queue is full the snapshot is dropped
// so that the cycle never blocks on the database.
func (p *PersistenceManager) OnMetrics(snap domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil
	}
	select {
	case p.snapChan <- snap:
	default:
		p.dropped++
	}
	return nil
}

// OnAlert queues an alert for immediate write.
func (p *PersistenceManager) OnAlert(ev domain.IntrusionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil
	}
	select {
	case p.alertChan <- ev:
	default:
		p.dropped++
	}
	return nil
}

// OnTopology is a no-op; topology is stored with each snapshot.
func (p *PersistenceManager) OnTopology(domain.TopologyDiff) error { return nil }

// OnDevices is a no-op; devices are stored with each snapshot.
func (p *PersistenceManager) OnDevices([]domain.DeviceRecord) error { return nil }

// Dropped returns how many items were discarded on a full queue.
func (p *PersistenceManager) Dropped() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

// IsEnabled returns the current persistence status.
func (p *PersistenceManager) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles persistence.
func (p *PersistenceManager) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// Start begins the persistence loop. The pending batch is flushed when ctx
// is cancelled; Done is closed afterwards.
func (p *PersistenceManager) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	var buffer []domain.Snapshot

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.drain(&buffer)
				p.flushBuffer(buffer)
				return
			case snap := <-p.snapChan:
				buffer = append(buffer, snap)
				if len(buffer) >= p.batchSize {
					p.flushBuffer(buffer)
					buffer = nil
				}
			case ev := <-p.alertChan:
				p.saveAlert(ev)
			case <-ticker.C:
				if len(buffer) > 0 {
					p.flushBuffer(buffer)
					buffer = nil
				}
			}
		}
	}()
}

// Done is closed once the loop has flushed and exited.
func (p *PersistenceManager) Done() <-chan struct{} {
	return p.done
}

// drain pulls whatever is still queued after cancellation.
func (p *PersistenceManager) drain(buffer *[]domain.Snapshot) {
	for {
		select {
		case snap := <-p.snapChan:
			*buffer = append(*buffer, snap)
		case ev := <-p.alertChan:
			p.saveAlert(ev)
		default:
			return
		}
	}
}

func (p *PersistenceManager) saveAlert(ev domain.IntrusionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.storage.SaveAlert(ctx, ev); err != nil {
		log.Printf("[DB-ERR] Failed to save alert %s: %v", ev.ID, err)
	}
}

func (p *PersistenceManager) flushBuffer(buffer []domain.Snapshot) {
	if len(buffer) == 0 || p.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.storage.SaveSnapshotsBatch(ctx, buffer); err != nil {
		log.Printf("[DB-ERR] Failed to batch save %d snapshots: %v", len(buffer), err)
	}
}

var _ ports.Subscriber = (*PersistenceManager)(nil)
