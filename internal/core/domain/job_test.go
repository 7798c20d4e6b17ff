package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job := NewJob(JobKindIndex, JobInput{PrefixList: []string{"reports/"}})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobKindIndex, job.Kind)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, int64(0), job.Version)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, true},
		{"pending to completed", JobStatusPending, JobStatusCompleted, true},
		{"pending to failed", JobStatusPending, JobStatusFailed, true},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to pending", JobStatusRunning, JobStatusPending, false},
		{"completed to running", JobStatusCompleted, JobStatusRunning, false},
		{"completed to failed", JobStatusCompleted, JobStatusFailed, false},
		{"failed to completed", JobStatusFailed, JobStatusCompleted, false},
		{"pending to pending", JobStatusPending, JobStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJobTransitionTo(t *testing.T) {
	job := NewJob(JobKindIndex, JobInput{PrefixList: []string{"a"}})

	require.NoError(t, job.TransitionTo(JobStatusRunning))
	require.NoError(t, job.TransitionTo(JobStatusCompleted))

	// Terminal jobs never change
	err := job.TransitionTo(JobStatusFailed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, JobStatusCompleted, job.Status)
}

func TestJobAppendEvent(t *testing.T) {
	job := NewJob(JobKindIndexDocument, JobInput{DocumentURL: "http://x/doc.pdf"})

	job.AppendEvent("extract_completed", "doc.pdf", "3 pages")
	job.AppendEvent("chunk_completed", "doc.pdf", "5 chunks")

	require.Len(t, job.History, 2)
	assert.Equal(t, "extract_completed", job.History[0].Name)
	assert.Equal(t, "5 chunks", job.History[1].Output)
}
