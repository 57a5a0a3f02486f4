// Package server provides the HTTP transport for the phile upload
// service. It includes handlers, middleware, routes, and DTOs separated
// from domain types.
//
// The wire protocol carries upload metadata in headers so chunk bodies
// stay raw bytes: sessions are created with POST /, chunks submitted
// with PATCH /, and sessions listed, downloaded, and deleted under
// their id.
package server

// CreateSessionResponse is the HTTP response after creating an upload session.
type CreateSessionResponse struct {
	// ID is the shareable identifier of the created session.
	ID string `json:"id"`
	// ChunkSize is the suggested chunk size in bytes for uploads.
	ChunkSize int64 `json:"chunk_size"`
}

// ChunkResponse is the HTTP response after accepting a chunk.
type ChunkResponse struct {
	// Received is the session's running count of accepted bytes,
	// the client's resume point.
	Received int64 `json:"received"`
}

// ListSessionResponse is the HTTP response for a session listing.
type ListSessionResponse struct {
	// Files holds the names of the files in the session.
	Files []string `json:"files"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// Header names used by the upload protocol.
const (
	// HeaderOwnerToken carries the caller-supplied session secret.
	HeaderOwnerToken = "Guid"
	// HeaderTotalSize declares the byte total of a new session.
	HeaderTotalSize = "Total-Size"
	// HeaderUploadID addresses an existing session on chunk submission.
	HeaderUploadID = "Upload-Id"
	// HeaderFileName carries the base64url+URI-encoded file name.
	HeaderFileName = "File-Name"
	// HeaderFileSize declares the total size of the chunk's file.
	HeaderFileSize = "File-Size"
)
