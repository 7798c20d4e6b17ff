package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.do(jsonRequest("POST", "/api/v1/text/chunk", "", map[string]string{"text": "hi"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeUnauthenticated, decodeBody(t, rec)["code"])
}

func TestAPIKeyMiddleware_UnknownKey(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.do(jsonRequest("POST", "/api/v1/text/chunk", "sk-wrong", map[string]string{"text": "hi"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyMiddleware_BearerHeader(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	req := jsonRequest("POST", "/api/v1/text/chunk", "", map[string]string{"text": "hello world"})
	req.Header.Set("Authorization", "Bearer "+freeKey)
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRateLimit_FreePlanMinuteWindow(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	// Requests 1-10 pass the limiter; the 11th is rejected
	for i := 0; i < 10; i++ {
		rec := f.do(jsonRequest("GET", "/api/v1/jobs/nope", freeKey, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, "request %d", i+1)
	}

	rec := f.do(jsonRequest("GET", "/api/v1/jobs/nope", freeKey, nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	body := decodeBody(t, rec)
	assert.Equal(t, domain.CodeRateLimited, body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(10), details["limit"])
	assert.Equal(t, "minute", details["window"])
	assert.Equal(t, float64(60), details["retry_after"])
}

func TestRateLimit_UnauthenticatedRequestsConsumeNoQuota(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	// A burst of 401s must not eat into the tenant's window
	for i := 0; i < 20; i++ {
		rec := f.do(jsonRequest("GET", "/api/v1/jobs/nope", "", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	for i := 0; i < 10; i++ {
		rec := f.do(jsonRequest("GET", "/api/v1/jobs/nope", freeKey, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, "request %d", i+1)
	}
}

func TestMetering_RecordsRequestOutcome(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.do(jsonRequest("POST", "/api/v1/text/chunk", freeKey,
		map[string]string{"text": "one two three four five"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f.meter.Close()

	records := f.usage.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "tenant-free", records[0].TenantID)
	assert.Equal(t, "/api/v1/text/chunk", records[0].Endpoint)
	assert.Equal(t, 5, records[0].TokensUsed)
	assert.True(t, records[0].Success)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestMetering_RecordsFailuresToo(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.do(jsonRequest("POST", "/api/v1/text/chunk", freeKey, map[string]string{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.meter.Close()

	records := f.usage.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestMetering_RecordsPagesProcessed(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.extractor.AddDocument("https://example.com/report.pdf", "one", "two", "three")

	rec := f.do(jsonRequest("POST", "/api/v1/document/extract", freeKey,
		map[string]string{"document_url": "https://example.com/report.pdf"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f.meter.Close()

	records := f.usage.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].PagesProcessed)
}

func TestMetering_RateLimitedRequestsLeaveNoRecord(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	for i := 0; i < 11; i++ {
		f.do(jsonRequest("GET", "/api/v1/jobs/nope", freeKey, nil))
	}

	f.meter.Close()

	// Ten admitted requests were metered; the rejected 11th was not
	assert.Len(t, f.usage.Records(), 10)
}

func TestInternalAuth_OpenWithoutTokens(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.do(httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalAuth_RequiresValidToken(t *testing.T) {
	tokens := auth.NewAdapter("test-secret")
	f := newFixture(t, fixtureOptions{tokens: tokens})

	rec := f.do(httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.IssueToken("ops", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalAuth_RejectsExpiredToken(t *testing.T) {
	tokens := auth.NewAdapter("test-secret")
	f := newFixture(t, fixtureOptions{tokens: tokens})

	token, err := tokens.IssueToken("ops", -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := NewRecoveryMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.CodeUpstreamFailure, decodeBody(t, rec)["code"])
}
