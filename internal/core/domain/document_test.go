package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordID_Deterministic(t *testing.T) {
	a := RecordID("report.pdf", 0, 120)
	b := RecordID("report.pdf", 0, 120)
	assert.Equal(t, a, b)
}

func TestRecordID_DistinguishesInputs(t *testing.T) {
	base := RecordID("report.pdf", 0, 120)

	assert.NotEqual(t, base, RecordID("other.pdf", 0, 120))
	assert.NotEqual(t, base, RecordID("report.pdf", 1, 120))
	assert.NotEqual(t, base, RecordID("report.pdf", 0, 121))
}

func TestAPIKeyDigest_Deterministic(t *testing.T) {
	assert.Equal(t, APIKeyDigest("key-1"), APIKeyDigest("key-1"))
	assert.NotEqual(t, APIKeyDigest("key-1"), APIKeyDigest("key-2"))
	// hex encoded sha3-256
	assert.Len(t, APIKeyDigest("key-1"), 64)
}
