package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
)

// Health and metadata endpoints

// handleHealth reports whether every required external service is configured.
// This is a configuration presence check, not a connectivity probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var missing []string
	for name, value := range s.requiredConfig {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"missing": missing,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns service metadata
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"service":       "ingest-core",
		"version":       s.version,
		"default_index": s.defaultIndex,
	}
	if s.embedder != nil {
		info["embedding_model"] = s.embedder.Model()
		info["embedding_dimensions"] = s.embedder.Dimensions()
	}
	writeJSON(w, http.StatusOK, info)
}

// Internal operator endpoints

// handleStatusAll lists every known job
func (s *Server) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	views, err := s.jobs.ListStatuses(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if views == nil {
		views = []*driving.JobStatusView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// handleStatusByID returns one job's status. Query flags show_history,
// show_history_output and show_input widen the response.
func (s *Server) handleStatusByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	opts := driving.StatusOptions{
		IncludeHistory:       queryBool(r, "show_history"),
		IncludeHistoryOutput: queryBool(r, "show_history_output"),
		IncludeInput:         queryBool(r, "show_input"),
	}

	view, err := s.jobs.Status(r.Context(), id, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type indexRequest struct {
	PrefixList []string `json:"prefix_list"`
	IndexName  string   `json:"index_name"`
}

// handleIndex kicks off an ingestion job over the source container
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "invalid request body", nil))
		return
	}
	if len(req.PrefixList) == 0 {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "prefix_list is required", nil))
		return
	}

	jobID, err := s.jobs.Start(r.Context(), domain.JobKindIndex, domain.JobInput{
		PrefixList: req.PrefixList,
		IndexName:  req.IndexName,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": jobID})
}

// handleStorageEvent handles object-storage creation notifications.
// Only PutBlob events start an ingestion job; everything else is
// acknowledged and ignored.
func (s *Server) handleStorageEvent(w http.ResponseWriter, r *http.Request) {
	var event struct {
		API     string `json:"api"`
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "invalid event payload", nil))
		return
	}

	if event.API != "PutBlob" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	prefix := blobPath(event.Subject)
	jobID, err := s.jobs.Start(r.Context(), domain.JobKindIndex, domain.JobInput{
		PrefixList: []string{prefix},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": jobID})
}

// blobPath extracts the in-container path from an event subject like
// ".../containers/source/blobs/reports/q3.pdf"
func blobPath(subject string) string {
	if i := strings.Index(subject, "/blobs/"); i >= 0 {
		return subject[i+len("/blobs/"):]
	}
	return subject
}

// handleSearch runs a semantic query
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "query parameter 'q' is required", nil))
		return
	}
	indexName := r.URL.Query().Get("index_name")

	hits, err := s.search.Search(r.Context(), query, indexName, 10)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if hits == nil {
		hits = []*domain.SearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

// Public API v1 endpoints

// handleExtract runs extraction only on an uploaded document or URL
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	doc, apiErr := s.resolveDocument(w, r)
	if apiErr != nil {
		writeAPIError(w, apiErr.status, apiErr.err)
		return
	}

	output, filename, err := s.bridge.Extract(r.Context(), doc.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	totalLength := 0
	for _, page := range output.Pages {
		totalLength += len(page)
	}
	if usage := GetUsage(r.Context()); usage != nil {
		usage.PagesProcessed = len(output.Pages)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pages":             output.Pages,
		"filename":          filename,
		"page_count":        len(output.Pages),
		"total_text_length": totalLength,
	})
}

type chunkRequest struct {
	Text         string `json:"text"`
	Filename     string `json:"filename"`
	SourceURL    string `json:"source_url"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// handleChunk splits raw text into bounded chunks
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "invalid request body", nil))
		return
	}
	if req.Text == "" {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "text is required", nil))
		return
	}

	output, _, err := s.bridge.Chunk(r.Context(), domain.JobInput{
		Text:         req.Text,
		Filename:     req.Filename,
		SourceURL:    req.SourceURL,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	totalTokens := 0
	for _, chunk := range output.Chunks {
		totalTokens += chunk.TokenCount
	}
	if usage := GetUsage(r.Context()); usage != nil {
		usage.TokensUsed = totalTokens
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chunks":       output.Chunks,
		"chunk_count":  len(output.Chunks),
		"total_tokens": totalTokens,
	})
}

type embeddingsRequest struct {
	Texts     []string `json:"texts"`
	Filename  string   `json:"filename"`
	SourceURL string   `json:"source_url"`
}

// handleEmbeddings generates embeddings for a batch of texts
func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "invalid request body", nil))
		return
	}
	if len(req.Texts) == 0 {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "texts is required", nil))
		return
	}

	limits := s.limitsFor(r)
	if len(req.Texts) > limits.MaxBatchItems {
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeBatchTooLarge,
				fmt.Sprintf("batch exceeds %d items", limits.MaxBatchItems),
				map[string]any{"max_items": limits.MaxBatchItems, "items": len(req.Texts)}))
		return
	}

	output, _, err := s.bridge.Embed(r.Context(), domain.JobInput{
		Texts:     req.Texts,
		Filename:  req.Filename,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	totalTokens := 0
	embeddings := make([]map[string]any, 0, len(output.Embeddings))
	for _, ec := range output.Embeddings {
		totalTokens += ec.TokenCount
		embeddings = append(embeddings, map[string]any{
			"text":       ec.Text,
			"embedding":  ec.Embedding,
			"dimensions": len(ec.Embedding),
		})
	}
	if usage := GetUsage(r.Context()); usage != nil {
		usage.TokensUsed = totalTokens
	}

	model := ""
	if s.embedder != nil {
		model = s.embedder.Model()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"embeddings":   embeddings,
		"model":        model,
		"total_tokens": totalTokens,
	})
}

// handlePipelineProcess runs the full pipeline asynchronously on one document
func (s *Server) handlePipelineProcess(w http.ResponseWriter, r *http.Request) {
	doc, apiErr := s.resolveDocument(w, r)
	if apiErr != nil {
		writeAPIError(w, apiErr.status, apiErr.err)
		return
	}

	indexName := doc.IndexName
	if indexName == "" {
		indexName = s.defaultIndex
	}

	jobID, err := s.jobs.Start(r.Context(), domain.JobKindIndexDocument, domain.JobInput{
		DocumentURL: doc.URL,
		IndexName:   indexName,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":         jobID,
		"status":         "processing",
		"status_url":     "/api/v1/jobs/" + jobID,
		"estimated_time": "2-5 minutes",
	})
}

// handleJobStatus returns the status of an async pipeline job
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	view, err := s.jobs.Status(r.Context(), jobID, driving.StatusOptions{})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"job_id":       view.ID,
		"status":       view.Status,
		"created_time": view.CreatedAt,
		"last_updated": view.LastUpdatedAt,
	}
	switch view.Status {
	case domain.JobStatusCompleted:
		resp["result"] = "document successfully processed and indexed"
	case domain.JobStatusFailed:
		if view.Output != nil {
			resp["error"] = view.Output.Error
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Request helpers

type handlerError struct {
	status int
	err    *domain.APIError
}

type processRequest struct {
	DocumentURL string `json:"document_url"`
	IndexName   string `json:"index_name"`
}

// resolvedDocument is the normalized form of a document-bearing request
type resolvedDocument struct {
	URL       string
	IndexName string
}

// resolveDocument turns the request into a document URL: either the
// document_url field of a JSON body, or a multipart upload streamed to the
// temp container. Upload size is capped by the tenant's plan before any
// bytes reach the pipeline.
func (s *Server) resolveDocument(w http.ResponseWriter, r *http.Request) (resolvedDocument, *handlerError) {
	limits := s.limitsFor(r)
	tooLarge := &handlerError{http.StatusRequestEntityTooLarge,
		domain.NewAPIError(domain.CodePayloadTooLarge, "upload exceeds plan limit",
			map[string]any{"max_size": limits.MaxUploadDisplay()})}

	if r.ContentLength > limits.MaxUploadBytes {
		return resolvedDocument{}, tooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return s.acceptUpload(r, limits, tooLarge)
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			return resolvedDocument{}, tooLarge
		}
		return resolvedDocument{}, &handlerError{http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "invalid request body", nil)}
	}
	if req.DocumentURL == "" {
		return resolvedDocument{}, &handlerError{http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "document_url is required", nil)}
	}
	return resolvedDocument{URL: req.DocumentURL, IndexName: req.IndexName}, nil
}

// acceptUpload streams the multipart document into the temp container and
// returns its URL
func (s *Server) acceptUpload(r *http.Request, limits domain.PlanLimits, tooLarge *handlerError) (resolvedDocument, *handlerError) {
	file, header, err := r.FormFile("document")
	if err != nil {
		if isBodyTooLarge(err) {
			return resolvedDocument{}, tooLarge
		}
		return resolvedDocument{}, &handlerError{http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "no document provided", nil)}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			return resolvedDocument{}, tooLarge
		}
		return resolvedDocument{}, &handlerError{http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, "failed to read upload", nil)}
	}

	if s.blobs == nil {
		return resolvedDocument{}, &handlerError{http.StatusServiceUnavailable,
			domain.NewAPIError(domain.CodeUpstreamFailure, "upload storage not configured", nil)}
	}

	name := domain.GenerateID() + "/" + header.Filename
	url, err := s.blobs.Upload(r.Context(), s.uploadContainer, name, data)
	if err != nil {
		return resolvedDocument{}, &handlerError{http.StatusInternalServerError,
			domain.NewAPIError(domain.CodeUpstreamFailure, "upload failed", nil)}
	}
	return resolvedDocument{URL: url, IndexName: r.FormValue("index_name")}, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// limitsFor returns the plan limits of the request's tenant, falling back to
// the most restrictive tier on unauthenticated internal calls
func (s *Server) limitsFor(r *http.Request) domain.PlanLimits {
	if tenant := GetTenant(r.Context()); tenant != nil {
		return s.quotas.Limits(tenant.Plan)
	}
	return s.quotas.Limits(domain.PlanFree)
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "true", "1":
		return true
	}
	return false
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeAPIError(w http.ResponseWriter, status int, apiErr *domain.APIError) {
	writeJSON(w, status, apiErr)
}

// writeDomainError maps a service error onto the wire taxonomy. Internal
// detail stays in the logs; clients get the stable code plus a short message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeAPIError(w, http.StatusNotFound,
			domain.NewAPIError(domain.CodeNotFound, "not found", nil))
	case errors.Is(err, domain.ErrInvalidInput):
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeValidation, err.Error(), nil))
	case errors.Is(err, domain.ErrBatchTooLarge):
		writeAPIError(w, http.StatusBadRequest,
			domain.NewAPIError(domain.CodeBatchTooLarge, err.Error(), nil))
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeAPIError(w, http.StatusRequestEntityTooLarge,
			domain.NewAPIError(domain.CodePayloadTooLarge, err.Error(), nil))
	case errors.Is(err, domain.ErrUnauthenticated):
		writeAPIError(w, http.StatusUnauthorized,
			domain.NewAPIError(domain.CodeUnauthenticated, "unauthenticated", nil))
	case errors.Is(err, domain.ErrBridgeTimeout):
		writeAPIError(w, http.StatusGatewayTimeout,
			domain.NewAPIError(domain.CodeTimeout, "operation timed out", nil))
	case errors.Is(err, domain.ErrStoreUnconfigured):
		writeAPIError(w, http.StatusServiceUnavailable,
			domain.NewAPIError(domain.CodeUpstreamFailure, "required service not configured", nil))
	case errors.Is(err, domain.ErrUpstreamFailure):
		writeAPIError(w, http.StatusInternalServerError,
			domain.NewAPIError(domain.CodeUpstreamFailure, "processing failed", nil))
	default:
		writeAPIError(w, http.StatusInternalServerError,
			domain.NewAPIError(domain.CodeUpstreamFailure, "internal error", nil))
	}
}
