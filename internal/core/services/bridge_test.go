package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
)

// syncRunner starts jobs and executes them on a background goroutine, the
// same shape a deployed worker gives the bridge.
type syncRunner struct {
	orch *Orchestrator
	run  bool
}

func (r *syncRunner) Start(ctx context.Context, kind domain.JobKind, input domain.JobInput) (string, error) {
	jobID, err := r.orch.Start(ctx, kind, input)
	if err != nil {
		return "", err
	}
	if r.run {
		go func() { _ = r.orch.Run(context.Background(), jobID) }()
	}
	return jobID, nil
}

func (r *syncRunner) Status(ctx context.Context, jobID string, opts driving.StatusOptions) (*driving.JobStatusView, error) {
	return r.orch.Status(ctx, jobID, opts)
}

func (r *syncRunner) ListStatuses(ctx context.Context) ([]*driving.JobStatusView, error) {
	return r.orch.ListStatuses(ctx)
}

func newBridgeFixture(t *testing.T, run bool) (*Bridge, *orchestratorFixture) {
	t.Helper()
	f := newOrchestratorFixture(t)
	bridge := NewBridge(BridgeConfig{
		Jobs:           f.jobs,
		Svc:            &syncRunner{orch: f.orch, run: run},
		PollInterval:   10 * time.Millisecond,
		ExtractTimeout: 2 * time.Second,
		DefaultTimeout: 2 * time.Second,
	})
	return bridge, f
}

func TestBridge_Extract(t *testing.T) {
	bridge, f := newBridgeFixture(t, true)
	f.extractor.AddDocument("https://example.com/report.pdf", "page one", "page two")

	output, filename, err := bridge.Extract(context.Background(), "https://example.com/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", filename)
	assert.Equal(t, []string{"page one", "page two"}, output.Pages)
}

func TestBridge_Chunk(t *testing.T) {
	bridge, _ := newBridgeFixture(t, true)

	output, _, err := bridge.Chunk(context.Background(), domain.JobInput{Text: "split this short text"})
	require.NoError(t, err)
	require.Len(t, output.Chunks, 1)
	assert.Equal(t, 4, output.Chunks[0].TokenCount)
}

func TestBridge_Embed(t *testing.T) {
	bridge, f := newBridgeFixture(t, true)

	output, _, err := bridge.Embed(context.Background(), domain.JobInput{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, output.Embeddings, 2)
	assert.Len(t, output.Embeddings[0].Embedding, f.embedder.Dimensions())
}

func TestBridge_StageFailure(t *testing.T) {
	bridge, f := newBridgeFixture(t, true)
	f.embedder.SetFailAlways(true)

	_, _, err := bridge.Embed(context.Background(), domain.JobInput{Texts: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}

func TestBridge_Timeout(t *testing.T) {
	f := newOrchestratorFixture(t)
	bridge := NewBridge(BridgeConfig{
		Jobs:           f.jobs,
		Svc:            &syncRunner{orch: f.orch, run: false}, // nothing executes the job
		PollInterval:   10 * time.Millisecond,
		ExtractTimeout: 100 * time.Millisecond,
		DefaultTimeout: 100 * time.Millisecond,
	})

	_, _, err := bridge.Extract(context.Background(), "https://example.com/report.pdf")
	assert.ErrorIs(t, err, domain.ErrBridgeTimeout)
}

func TestBridge_ContextCancelled(t *testing.T) {
	f := newOrchestratorFixture(t)
	bridge := NewBridge(BridgeConfig{
		Jobs:         f.jobs,
		Svc:          &syncRunner{orch: f.orch, run: false},
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := bridge.Extract(ctx, "https://example.com/report.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}
