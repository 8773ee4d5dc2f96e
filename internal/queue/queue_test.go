package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/olakai-ai/olakai-sdk-go/internal/apitypes"
	"github.com/olakai-ai/olakai-sdk-go/internal/logging"
	"github.com/olakai-ai/olakai-sdk-go/internal/storage"
)

func testLogger() *logging.Sink {
	return logging.New(logging.WithWriter(io.Discard))
}

type fakeSender struct {
	mu    sync.Mutex
	calls [][]apitypes.MonitorPayload
	resp  func(payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error)
}

func (f *fakeSender) SendMonitoring(_ context.Context, payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, payloads)
	f.mu.Unlock()
	if f.resp != nil {
		return f.resp(payloads)
	}
	return &apitypes.MonitoringResponse{Success: true}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func payload(email string) apitypes.MonitorPayload {
	return apitypes.MonitorPayload{Email: email, Prompt: "p", Response: "r"}
}

func TestCoalesce(t *testing.T) {
	for _, tc := range [...]struct {
		name      string
		batches   []apitypes.BatchRequest
		batchSize int
		req       enqueueRequest
		wantLen   int
		wantLast  int // len(Payload) of the batch the request landed in
		wantImm   bool
	}{
		{
			name:      `empty queue never drains immediately`,
			batches:   nil,
			batchSize: 10,
			req:       enqueueRequest{payload: payload(`a`), priority: apitypes.PriorityHigh},
			wantLen:   1,
			wantLast:  1,
			wantImm:   false,
		},
		{
			name:      `absorbed into existing batch with matching retries`,
			batches:   []apitypes.BatchRequest{{ID: `b1`, Payload: []apitypes.MonitorPayload{payload(`a`)}, Retries: 0, Priority: apitypes.PriorityNormal}},
			batchSize: 10,
			req:       enqueueRequest{payload: payload(`b`), retries: 0, priority: apitypes.PriorityNormal},
			wantLen:   1,
			wantLast:  2,
			wantImm:   false,
		},
		{
			name:      `high priority upgrades existing batch and drains immediately`,
			batches:   []apitypes.BatchRequest{{ID: `b1`, Payload: []apitypes.MonitorPayload{payload(`a`)}, Retries: 0, Priority: apitypes.PriorityNormal}},
			batchSize: 10,
			req:       enqueueRequest{payload: payload(`b`), retries: 0, priority: apitypes.PriorityHigh},
			wantLen:   1,
			wantLast:  2,
			wantImm:   true,
		},
		{
			name:      `filling the batch drains immediately`,
			batches:   []apitypes.BatchRequest{{ID: `b1`, Payload: []apitypes.MonitorPayload{payload(`a`)}, Retries: 0, Priority: apitypes.PriorityNormal}},
			batchSize: 2,
			req:       enqueueRequest{payload: payload(`b`), retries: 0, priority: apitypes.PriorityNormal},
			wantLen:   1,
			wantLast:  2,
			wantImm:   true,
		},
		{
			name:      `mismatched retries starts a new batch`,
			batches:   []apitypes.BatchRequest{{ID: `b1`, Payload: []apitypes.MonitorPayload{payload(`a`)}, Retries: 0, Priority: apitypes.PriorityNormal}},
			batchSize: 10,
			req:       enqueueRequest{payload: payload(`b`), retries: 1, priority: apitypes.PriorityNormal},
			wantLen:   2,
			wantLast:  1,
			wantImm:   false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, imm := coalesce(tc.batches, tc.batchSize, tc.req)
			if len(got) != tc.wantLen {
				t.Fatalf(`len(batches) = %d, want %d`, len(got), tc.wantLen)
			}
			if n := len(got[len(got)-1].Payload); n != tc.wantLast {
				t.Errorf(`len(last batch payload) = %d, want %d`, n, tc.wantLast)
			}
			if imm != tc.wantImm {
				t.Errorf(`immediate = %v, want %v`, imm, tc.wantImm)
			}
		})
	}
}

func newTestManager(cfg Config, sender Sender) (*Manager, storage.Adapter) {
	adapter := storage.NewMemory()
	if cfg.StorageKey == "" {
		cfg.StorageKey = `test-queue`
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Hour
	}
	return New(cfg, adapter, sender, testLogger()), adapter
}

func TestManager_EnqueueAndFlush_Success(t *testing.T) {
	sender := &fakeSender{}
	cfg := Config{BatchSize: 10, Retries: 3, StorageEnabled: true}
	m, _ := newTestManager(cfg, sender)
	defer m.Close()

	m.Enqueue(payload(`a`), 0, apitypes.PriorityNormal)
	m.Flush(context.Background())

	if n := sender.callCount(); n != 1 {
		t.Fatalf(`callCount = %d, want 1`, n)
	}
	if got := m.Size(); got != 0 {
		t.Fatalf(`Size() = %d, want 0 after successful send`, got)
	}
}

func TestManager_PartialFailureReconciliation(t *testing.T) {
	sender := &fakeSender{
		resp: func(payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error) {
			return &apitypes.MonitoringResponse{
				Success:       false,
				TotalRequests: len(payloads),
				FailureCount:  1,
				Results: []apitypes.MonitoringResult{
					{Index: 0, Success: false},
					{Index: 1, Success: true},
				},
			}, nil
		},
	}
	cfg := Config{BatchSize: 10, Retries: 3, StorageEnabled: true}
	m, adapter := newTestManager(cfg, sender)
	defer m.Close()

	m.Enqueue(payload(`a`), 0, apitypes.PriorityNormal)
	m.Enqueue(payload(`b`), 0, apitypes.PriorityNormal)
	m.Flush(context.Background())

	if got := m.Size(); got != 1 {
		t.Fatalf(`Size() = %d, want 1 (one retried batch)`, got)
	}

	raw, ok := adapter.Get(cfg.StorageKey)
	if !ok {
		t.Fatal(`expected persisted queue`)
	}
	var batches []apitypes.BatchRequest
	if err := json.Unmarshal([]byte(raw), &batches); err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || len(batches[0].Payload) != 1 || batches[0].Retries != 1 {
		t.Fatalf(`unexpected persisted batches: %+v`, batches)
	}
	if batches[0].Payload[0].Email != `a` {
		t.Errorf(`retried payload = %q, want "a"`, batches[0].Payload[0].Email)
	}
}

func TestManager_SendError_ReEnqueuesViaCoalescing(t *testing.T) {
	sendErr := errors.New(`boom`)
	sender := &fakeSender{
		resp: func(payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error) {
			return nil, sendErr
		},
	}
	cfg := Config{BatchSize: 10, Retries: 3, StorageEnabled: true}
	m, _ := newTestManager(cfg, sender)
	defer m.Close()

	m.Enqueue(payload(`a`), 0, apitypes.PriorityNormal)
	m.Flush(context.Background())

	if got := m.Size(); got != 1 {
		t.Fatalf(`Size() = %d, want 1`, got)
	}

	// Flush again: the re-enqueued batch (retries=1) should be attempted.
	m.Flush(context.Background())
	if n := sender.callCount(); n != 2 {
		t.Fatalf(`callCount = %d, want 2`, n)
	}
}

func TestManager_Clear(t *testing.T) {
	sender := &fakeSender{}
	cfg := Config{BatchSize: 10, Retries: 3, StorageEnabled: true, BatchTimeout: time.Hour}
	m, adapter := newTestManager(cfg, sender)
	defer m.Close()

	m.Enqueue(payload(`a`), 0, apitypes.PriorityNormal)
	m.Clear()

	if got := m.Size(); got != 0 {
		t.Fatalf(`Size() = %d, want 0 after Clear`, got)
	}
	if _, ok := adapter.Get(cfg.StorageKey); ok {
		t.Fatal(`expected persisted queue to be removed by Clear`)
	}
	if n := sender.callCount(); n != 0 {
		t.Fatalf(`callCount = %d, want 0: Clear must not send`, n)
	}
}

func TestManager_StorageEviction(t *testing.T) {
	sender := &fakeSender{}
	cfg := Config{
		BatchSize:      10,
		Retries:        3,
		StorageEnabled: true,
		MaxStorageSize: 400,
		BatchTimeout:   time.Hour,
	}
	m, adapter := newTestManager(cfg, sender)
	defer m.Close()

	// Distinct retry counts keep each payload in its own batch, so the
	// persisted blob grows with every enqueue until eviction kicks in.
	for i := 0; i < 10; i++ {
		m.Enqueue(payload(`user@example.com`), i, apitypes.PriorityNormal)
	}

	raw, ok := adapter.Get(cfg.StorageKey)
	if !ok {
		t.Fatal(`expected persisted queue`)
	}
	if int64(len(raw)) > cfg.MaxStorageSize {
		t.Fatalf(`persisted size %d exceeds MaxStorageSize %d`, len(raw), cfg.MaxStorageSize)
	}
	if got := m.Size(); got >= 10 {
		t.Fatalf(`Size() = %d, want fewer than 10 batches after eviction`, got)
	}
}

func TestManager_RetryCleanupSweep(t *testing.T) {
	sendErr := errors.New(`down`)
	sender := &fakeSender{
		resp: func(payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error) {
			return nil, sendErr
		},
	}
	cfg := Config{
		BatchSize:      10,
		Retries:        1,
		StorageEnabled: true,
		BatchTimeout:   20 * time.Millisecond,
	}
	m, _ := newTestManager(cfg, sender)
	defer m.Close()

	// retries already at the ceiling: the cleanup sweep should drop it
	// rather than let it drain forever.
	m.Enqueue(payload(`a`), 1, apitypes.PriorityNormal)

	deadline := time.After(2 * time.Second)
	for {
		if m.Size() == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal(`expected retry-cleanup sweep to drop the exhausted batch`)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
