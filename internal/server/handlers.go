package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/n-1x/phile/internal/protocol"
	"github.com/n-1x/phile/internal/session"
	"github.com/n-1x/phile/internal/storage"
)

// DefaultMaxChunkBytes bounds a single chunk body when no limit is
// configured.
const DefaultMaxChunkBytes = 64 << 20

// Handlers contains the HTTP handlers for the upload service.
type Handlers struct {
	registry      *session.Registry
	logger        *slog.Logger
	chunkSize     int64
	maxChunkBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithChunkSizeHint sets the chunk size advertised to upload clients.
func WithChunkSizeHint(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.chunkSize = n
		}
	}
}

// WithMaxChunkBytes caps the size of a single submitted chunk.
func WithMaxChunkBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxChunkBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(registry *session.Registry, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		registry:      registry,
		logger:        logger,
		chunkSize:     8 << 20,
		maxChunkBytes: DefaultMaxChunkBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateSession handles POST / requests: it opens a new upload session
// and returns its shareable id together with a chunk-size hint.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	desc, err := protocol.ParseCreate(
		r.Header.Get(HeaderOwnerToken),
		r.Header.Get(HeaderTotalSize),
	)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	s, err := h.registry.Create(r.Context(), desc.OwnerToken, desc.TotalSize)
	if err != nil {
		h.logger.Error("failed to create session",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create session", "SESSION_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		ID:        s.ID(),
		ChunkSize: h.chunkSize,
	})
}

// SubmitChunk handles PATCH / requests: one raw chunk body plus header
// metadata. The response carries the session's running received-byte
// count. Submission blocks while the file's previous write is still in
// flight, which is how backpressure reaches the network.
func (h *Handlers) SubmitChunk(w http.ResponseWriter, r *http.Request) {
	desc, err := protocol.ParseChunk(protocol.RawChunk{
		SessionID:       r.Header.Get(HeaderUploadID),
		OwnerToken:      r.Header.Get(HeaderOwnerToken),
		EncodedFileName: r.Header.Get(HeaderFileName),
		FileSize:        r.Header.Get(HeaderFileSize),
		ChunkLength:     r.ContentLength,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if desc.ChunkLength > h.maxChunkBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("chunk exceeds %d bytes", h.maxChunkBytes), "CHUNK_TOO_LARGE")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxChunkBytes))
	if err != nil || int64(len(body)) != desc.ChunkLength {
		// An aborted body read never reaches the registry, so nothing
		// was accepted and the client can resend the chunk.
		h.logger.Warn("incomplete chunk body",
			slog.String("session_id", desc.SessionID),
			slog.String("file", desc.FileName),
			slog.Int("read", len(body)),
			slog.Int64("declared", desc.ChunkLength),
		)
		writeError(w, http.StatusBadRequest, "incomplete chunk body", "INCOMPLETE_CHUNK")
		return
	}

	received, err := h.registry.RecordChunk(r.Context(), desc, body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChunkResponse{Received: received})
}

// ListSession handles GET /{id} requests with a listing of the
// session's file names. Read access needs no owner token.
func (h *Handlers) ListSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	files, err := h.registry.Files(r.Context(), sessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListSessionResponse{Files: files})
}

// DownloadFile handles GET /{id}/{file} requests, streaming a stored
// file with an attachment disposition so browsers offer to save it.
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	name := r.PathValue("file")

	body, size, err := h.registry.OpenFile(r.Context(), sessionID, name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("download interrupted",
			slog.String("session_id", sessionID),
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteSession handles DELETE /{id} requests: immediate deletion when
// the owner token matches, untouched otherwise.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	token := r.Header.Get(HeaderOwnerToken)

	if err := h.registry.Delete(sessionID, token); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeDomainError maps domain errors onto HTTP responses. Deleted and
// unknown sessions are indistinguishable to callers; the reasons stay
// in the operational logs.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, session.ErrDeclaredSizeChanged):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, session.ErrOwnerMismatch):
		writeError(w, http.StatusForbidden, "owner token mismatch", "OWNER_MISMATCH")
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, session.ErrCapacityExceeded):
		writeError(w, http.StatusRequestEntityTooLarge, "declared capacity exceeded", "CAPACITY_EXCEEDED")
	case errors.Is(err, storage.ErrInvalidName), errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "file not found", "FILE_NOT_FOUND")
	default:
		h.logger.Error("request failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
