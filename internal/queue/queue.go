// Package queue implements the batch queue manager: an in-memory, persisted
// queue of MonitorPayloads, coalesced into retry-compatible batches, drained
// in priority order with exponential backoff already applied by the
// transport layer, and reconciled against partial-batch server responses.
//
// The manager's event loop is grounded on go-microbatch's single-goroutine,
// channel-driven design (ping/pong submit handshake generalized here to a
// small set of typed command channels), since the coalescing/priority/
// persistence rules need shared mutable state that go-microbatch's
// generic one-batch-at-a-time model doesn't carry. All queue mutation
// happens on the one controller goroutine, so it's linearized without
// explicit locks.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/olakai-ai/olakai-sdk-go/internal/apitypes"
	"github.com/olakai-ai/olakai-sdk-go/internal/logging"
	"github.com/olakai-ai/olakai-sdk-go/internal/storage"
)

// Sender is the transport-layer capability the queue manager depends on.
// Satisfied by *transport.Client.
type Sender interface {
	SendMonitoring(ctx context.Context, payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error)
}

// Config is the subset of SDK configuration the queue manager needs.
type Config struct {
	BatchSize      int
	BatchTimeout   time.Duration
	Retries        int
	StorageEnabled bool
	StorageKey     string
	MaxStorageSize int64
}

// Manager owns the in-memory batch queue and its persisted mirror.
// Instances must be built with New.
type Manager struct {
	cfg     Config
	storage storage.Adapter
	sender  Sender
	logger  *logging.Sink

	enqueueCh chan enqueueRequest
	flushCh   chan chan struct{}
	sizeCh    chan chan int
	clearCh   chan chan struct{}
	closeCh   chan struct{}
	doneCh    chan struct{}
}

type enqueueRequest struct {
	payload  apitypes.MonitorPayload
	retries  int
	priority apitypes.Priority
}

// New constructs a Manager, loads any persisted queue, and starts its
// controller goroutine. If the loaded queue is non-empty, an immediate
// drain is scheduled.
func New(cfg Config, adapter storage.Adapter, sender Sender, logger *logging.Sink) *Manager {
	m := &Manager{
		cfg:       cfg,
		storage:   adapter,
		sender:    sender,
		logger:    logger,
		enqueueCh: make(chan enqueueRequest),
		flushCh:   make(chan chan struct{}),
		sizeCh:    make(chan chan int),
		clearCh:   make(chan chan struct{}),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Enqueue adds payload to the queue under the coalescing algorithm.
// Non-blocking from the caller's perspective only in the sense that it
// never performs I/O itself; it hands off to the controller goroutine.
func (m *Manager) Enqueue(payload apitypes.MonitorPayload, retries int, priority apitypes.Priority) {
	select {
	case m.enqueueCh <- enqueueRequest{payload: payload, retries: retries, priority: priority}:
	case <-m.doneCh:
	}
}

// Flush forces an immediate drain attempt of the current head batch,
// returning once that attempt (success, partial failure, or exhaustion)
// has completed, or ctx is done.
func (m *Manager) Flush(ctx context.Context) {
	ack := make(chan struct{})
	select {
	case m.flushCh <- ack:
	case <-m.doneCh:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Size returns the current number of batches (not payloads) in the queue.
func (m *Manager) Size() int {
	respCh := make(chan int, 1)
	select {
	case m.sizeCh <- respCh:
	case <-m.doneCh:
		return 0
	}
	return <-respCh
}

// Clear drops both the in-memory queue and the persisted blob, without
// sending anything.
func (m *Manager) Clear() {
	ack := make(chan struct{})
	select {
	case m.clearCh <- ack:
	case <-m.doneCh:
		return
	}
	<-ack
}

// Close stops the controller goroutine. Callers wanting a final flush on
// shutdown must call Flush before Close.
func (m *Manager) Close() {
	close(m.closeCh)
	<-m.doneCh
}

func (m *Manager) run() {
	defer close(m.doneCh)

	batches := m.loadPersisted()

	var drainTimer *time.Timer
	var drainCh <-chan time.Time
	var cleanupTimer *time.Timer
	var cleanupCh <-chan time.Time

	scheduleDrain := func() {
		if drainTimer != nil {
			return
		}
		drainTimer = time.NewTimer(m.cfg.BatchTimeout)
		drainCh = drainTimer.C
	}
	cancelDrain := func() {
		if drainTimer != nil {
			drainTimer.Stop()
			drainTimer = nil
			drainCh = nil
		}
	}
	scheduleCleanup := func() {
		if cleanupTimer != nil {
			return
		}
		cleanupTimer = time.NewTimer(m.cfg.BatchTimeout)
		cleanupCh = cleanupTimer.C
	}

	drainOnce := func() {
		cancelDrain()
		batches = m.drainHead(batches)
		if len(batches) > 0 {
			scheduleDrain()
		}
	}

	if len(batches) > 0 {
		drainTimer = time.NewTimer(0)
		drainCh = drainTimer.C
		scheduleCleanup()
	}

	for {
		select {
		case <-m.closeCh:
			cancelDrain()
			if cleanupTimer != nil {
				cleanupTimer.Stop()
			}
			return

		case req := <-m.enqueueCh:
			wasEmpty := len(batches) == 0
			var immediate bool
			batches, immediate = coalesce(batches, m.cfg.BatchSize, req)
			batches = m.persist(batches)
			scheduleCleanup()
			if !wasEmpty && immediate {
				drainOnce()
			} else {
				scheduleDrain()
			}

		case ack := <-m.flushCh:
			drainOnce()
			close(ack)

		case respCh := <-m.sizeCh:
			respCh <- len(batches)

		case ack := <-m.clearCh:
			batches = nil
			if m.cfg.StorageEnabled {
				if err := m.storage.Remove(m.cfg.StorageKey); err != nil {
					m.logger.Warning("failed to clear persisted queue", logging.Err(err))
				} else {
					m.logger.Info("cleared queue from storage")
				}
			}
			close(ack)

		case <-drainCh:
			drainTimer = nil
			drainCh = nil
			drainOnce()

		case <-cleanupCh:
			cleanupTimer = nil
			cleanupCh = nil
			batches = m.sweepExpiredRetries(batches)
			if len(batches) > 0 {
				scheduleCleanup()
			}
		}
	}
}

// coalesce absorbs req into the most recent compatible batch, or appends a
// new one. immediate reports whether the result should be drained right
// away; it's meaningless (and ignored) for the empty-queue case, which
// never drains immediately regardless of priority.
func coalesce(batches []apitypes.BatchRequest, batchSize int, req enqueueRequest) (_ []apitypes.BatchRequest, immediate bool) {
	if len(batches) == 0 {
		return append(batches, newBatch(req)), false
	}

	for i := len(batches) - 1; i >= 0; i-- {
		b := &batches[i]
		if len(b.Payload) < batchSize && b.Retries == req.retries {
			b.Payload = append(b.Payload, req.payload)
			if req.priority == apitypes.PriorityHigh {
				b.Priority = apitypes.PriorityHigh
			}
			full := len(b.Payload) >= batchSize
			return batches, req.priority == apitypes.PriorityHigh || full
		}
	}

	nb := newBatch(req)
	batches = append(batches, nb)
	full := len(nb.Payload) >= batchSize
	return batches, req.priority == apitypes.PriorityHigh || full
}

func newBatch(req enqueueRequest) apitypes.BatchRequest {
	return apitypes.BatchRequest{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), nextID()),
		Payload:   []apitypes.MonitorPayload{req.payload},
		Timestamp: time.Now().UnixMilli(),
		Retries:   req.retries,
		Priority:  req.priority,
	}
}

var idCounter atomic.Int64

func nextID() int64 { return idCounter.Add(1) }

// drainHead stable-sorts by priority, pops the head batch, sends it, and
// reconciles the result.
func (m *Manager) drainHead(batches []apitypes.BatchRequest) []apitypes.BatchRequest {
	if len(batches) == 0 {
		return batches
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Priority.Rank() < batches[j].Priority.Rank()
	})

	head := batches[0]
	batches = batches[1:]
	batches = m.persist(batches)

	if len(head.Payload) == 0 {
		return batches
	}

	resp, err := m.sender.SendMonitoring(context.Background(), head.Payload)
	if err != nil {
		// Re-enqueue every payload via the normal enqueue path (re-running
		// coalescing), incrementing retries.
		m.logger.Debug("batch send failed, re-enqueuing", logging.Err(err), logging.Int("batchSize", len(head.Payload)))
		for _, p := range head.Payload {
			batches, _ = coalesce(batches, m.cfg.BatchSize, enqueueRequest{
				payload:  p,
				retries:  head.Retries + 1,
				priority: head.Priority,
			})
		}
		return m.persist(batches)
	}

	batches = m.reconcile(batches, head, resp)
	return m.persist(batches)
}

// reconcile folds a monitoring response back into the queue: per-item
// failures are resplit into a fresh retry batch, a whole-batch failure
// retries the whole batch, and success drops it.
func (m *Manager) reconcile(batches []apitypes.BatchRequest, head apitypes.BatchRequest, resp *apitypes.MonitoringResponse) []apitypes.BatchRequest {
	if len(resp.Results) > 0 {
		var failed []apitypes.MonitorPayload
		for _, r := range resp.Results {
			if r.Success || r.Index < 0 || r.Index >= len(head.Payload) {
				continue
			}
			failed = append(failed, head.Payload[r.Index])
		}
		if len(failed) > 0 {
			m.logger.Warning("batch partially failed", logging.Int("failed", len(failed)), logging.Int("total", len(head.Payload)))
			return append(batches, apitypes.BatchRequest{
				ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), nextID()),
				Payload:   failed,
				Timestamp: time.Now().UnixMilli(),
				Retries:   head.Retries + 1,
				Priority:  head.Priority,
			})
		}
		m.logger.Info("batch sent successfully", logging.Int("size", len(head.Payload)))
		return batches
	}

	if !resp.Success {
		m.logger.Warning("batch failed with no per-item results, retrying all", logging.Int("size", len(head.Payload)))
		return append(batches, apitypes.BatchRequest{
			ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), nextID()),
			Payload:   head.Payload,
			Timestamp: time.Now().UnixMilli(),
			Retries:   head.Retries + 1,
			Priority:  head.Priority,
		})
	}

	m.logger.Info("batch sent successfully", logging.Int("size", len(head.Payload)))
	return batches
}

// sweepExpiredRetries drops batches whose retries reached the configured
// ceiling, silently as far as delivery goes, but logged at info level.
func (m *Manager) sweepExpiredRetries(batches []apitypes.BatchRequest) []apitypes.BatchRequest {
	kept := batches[:0:0]
	dropped := 0
	for _, b := range batches {
		if b.Retries >= m.cfg.Retries {
			dropped++
			m.logger.InfoRateLimited("retry-cleanup-drop", "dropping batch: exceeded max retries",
				logging.Str("batchId", b.ID), logging.Int("payloads", len(b.Payload)))
			continue
		}
		kept = append(kept, b)
	}
	if dropped > 0 {
		return m.persist(kept)
	}
	return batches
}

// persist serializes batches to storage, evicting oldest-first if the
// serialized size exceeds MaxStorageSize, until size drops below 80% of
// the limit. The possibly-shrunk slice is returned so callers keep their
// in-memory view consistent with what was persisted.
func (m *Manager) persist(batches []apitypes.BatchRequest) []apitypes.BatchRequest {
	if !m.cfg.StorageEnabled {
		return batches
	}

	data, err := json.Marshal(batches)
	if err != nil {
		m.logger.WarningRateLimited("persist-marshal", "failed to persist queue", logging.Err(err))
		return batches
	}

	if m.cfg.MaxStorageSize > 0 && int64(len(data)) > m.cfg.MaxStorageSize {
		target := int64(float64(m.cfg.MaxStorageSize) * 0.8)
		for len(batches) > 0 {
			evicted := batches[0]
			batches = batches[1:]
			m.logger.Warning("evicting oldest batch: storage size limit exceeded",
				logging.Str("batchId", evicted.ID))
			data, err = json.Marshal(batches)
			if err != nil {
				m.logger.WarningRateLimited("persist-marshal", "failed to persist queue", logging.Err(err))
				return batches
			}
			if int64(len(data)) <= target {
				break
			}
		}
	}

	if err := m.storage.Set(m.cfg.StorageKey, string(data)); err != nil {
		m.logger.WarningRateLimited("persist-set", "failed to persist queue", logging.Err(err))
	}

	return batches
}

func (m *Manager) loadPersisted() []apitypes.BatchRequest {
	if !m.cfg.StorageEnabled {
		return nil
	}
	raw, ok := m.storage.Get(m.cfg.StorageKey)
	if !ok || raw == "" {
		return nil
	}
	var batches []apitypes.BatchRequest
	if err := json.Unmarshal([]byte(raw), &batches); err != nil {
		m.logger.Warning("failed to load persisted queue", logging.Err(err))
		return nil
	}
	if len(batches) == 0 {
		return nil
	}
	m.logger.Info("loaded persisted queue", logging.Int("batches", len(batches)))
	return batches
}
