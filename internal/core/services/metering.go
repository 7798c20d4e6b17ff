package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Meter records billable usage asynchronously. The gateway hands records in
// after each gated request finishes; a background goroutine appends them to
// the usage store. Store failures are logged and dropped - metering never
// fails or delays a client response.
type Meter struct {
	store  driven.UsageStore
	logger *slog.Logger

	ch   chan *domain.UsageRecord
	once sync.Once
	done chan struct{}
}

// NewMeter creates and starts a usage meter. store may be nil; records are
// then dropped with a log line.
func NewMeter(store driven.UsageStore, buffer int, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1024
	}

	m := &Meter{
		store:  store,
		logger: logger,
		ch:     make(chan *domain.UsageRecord, buffer),
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

// Record enqueues a usage record. Never blocks: when the buffer is full the
// record is dropped and logged.
func (m *Meter) Record(record *domain.UsageRecord) {
	if record == nil {
		return
	}
	select {
	case m.ch <- record:
	default:
		m.logger.Warn("usage buffer full, dropping record",
			"tenant_id", record.TenantID, "endpoint", record.Endpoint)
	}
}

func (m *Meter) loop() {
	defer close(m.done)
	for record := range m.ch {
		if m.store == nil {
			m.logger.Debug("usage store unconfigured, dropping record",
				"tenant_id", record.TenantID, "endpoint", record.Endpoint)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.store.Append(ctx, record); err != nil {
			m.logger.Error("failed to append usage record",
				"tenant_id", record.TenantID, "endpoint", record.Endpoint, "error", err)
		}
		cancel()
	}
}

// Close drains buffered records and stops the meter.
func (m *Meter) Close() {
	m.once.Do(func() { close(m.ch) })
	<-m.done
}
