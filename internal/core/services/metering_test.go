package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven/mocks"
)

func TestMeter_RecordsUsage(t *testing.T) {
	store := mocks.NewMockUsageStore()
	meter := NewMeter(store, 16, nil)

	meter.Record(&domain.UsageRecord{TenantID: "tenant-1", Endpoint: "/api/v1/text/chunk", TokensUsed: 42, Success: true})
	meter.Record(&domain.UsageRecord{TenantID: "tenant-1", Endpoint: "/api/v1/document/extract", PagesProcessed: 3, Success: false})
	meter.Close()

	records := store.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 42, records[0].TokensUsed)
	assert.True(t, records[0].Success)
	assert.Equal(t, 3, records[1].PagesProcessed)
	assert.False(t, records[1].Success)
}

func TestMeter_CloseDrainsBuffer(t *testing.T) {
	store := mocks.NewMockUsageStore()
	meter := NewMeter(store, 64, nil)

	for i := 0; i < 50; i++ {
		meter.Record(&domain.UsageRecord{TenantID: "tenant-1", Endpoint: "/api/v1/search"})
	}
	meter.Close()

	assert.Len(t, store.Records(), 50)
}

func TestMeter_StoreFailureIsSwallowed(t *testing.T) {
	store := mocks.NewMockUsageStore()
	store.SetFailWith(errors.New("database down"))
	meter := NewMeter(store, 16, nil)

	meter.Record(&domain.UsageRecord{TenantID: "tenant-1", Endpoint: "/api/v1/search"})
	meter.Close()

	assert.Empty(t, store.Records())
}

func TestMeter_NilStoreDropsRecords(t *testing.T) {
	meter := NewMeter(nil, 16, nil)

	meter.Record(&domain.UsageRecord{TenantID: "tenant-1"})
	meter.Record(nil)
	meter.Close()
}

func TestMeter_CloseIsIdempotent(t *testing.T) {
	meter := NewMeter(mocks.NewMockUsageStore(), 16, nil)
	meter.Close()
	meter.Close()
}

func TestMeter_NeverBlocksWhenFull(t *testing.T) {
	store := mocks.NewMockUsageStore()
	store.SetFailWith(errors.New("slow"))
	meter := NewMeter(store, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			meter.Record(&domain.UsageRecord{TenantID: "tenant-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	meter.Close()
}
