// Package protocol parses and validates the metadata that accompanies
// upload requests. It is pure: no state is read or mutated here, so the
// session registry can trust a descriptor's shape and concentrate on
// ownership and capacity.
//
// File names travel base64url-encoded over URI-encoded UTF-8, so
// arbitrary unicode names survive HTTP header transport.
package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned for missing, mistyped, or undecodable
// request metadata.
var ErrMalformed = errors.New("protocol: malformed transfer metadata")

var validate = validator.New()

// RawChunk carries chunk metadata exactly as presented by the transport
// layer, before any decoding.
type RawChunk struct {
	// SessionID is the id of the session this chunk belongs to.
	SessionID string
	// OwnerToken is the caller-supplied session secret.
	OwnerToken string
	// EncodedFileName is the base64url+URI-encoded UTF-8 file name.
	EncodedFileName string
	// FileSize is the decimal declared size of the whole file.
	FileSize string
	// ChunkLength is the byte length of this chunk's payload.
	ChunkLength int64
}

// ChunkDescriptor is the normalized result of validating a RawChunk.
type ChunkDescriptor struct {
	// SessionID is the id of the session this chunk belongs to.
	SessionID string `validate:"required"`
	// FileName is the decoded file name; it identifies the file within
	// the session.
	FileName string `validate:"required,max=255"`
	// DeclaredFileSize is the total size the file will reach.
	DeclaredFileSize int64 `validate:"required,min=1"`
	// ChunkLength is the byte length of this chunk's payload.
	ChunkLength int64 `validate:"required,min=1"`
	// OwnerToken is the caller-supplied session secret.
	OwnerToken string `validate:"required"`
}

// CreateDescriptor is the normalized result of validating a
// session-creation request.
type CreateDescriptor struct {
	// OwnerToken is the caller-supplied session secret.
	OwnerToken string `validate:"required"`
	// TotalSize is the declared byte total across all files.
	TotalSize int64 `validate:"required,min=1"`
}

// ParseChunk validates a raw chunk's metadata and produces a normalized
// descriptor. It performs no session lookup; unknown ids, token
// mismatches, and capacity violations are the registry's concern.
func ParseChunk(raw RawChunk) (ChunkDescriptor, error) {
	name, err := DecodeFileName(raw.EncodedFileName)
	if err != nil {
		return ChunkDescriptor{}, err
	}

	size, err := parseSize("file size", raw.FileSize)
	if err != nil {
		return ChunkDescriptor{}, err
	}

	desc := ChunkDescriptor{
		SessionID:        raw.SessionID,
		FileName:         name,
		DeclaredFileSize: size,
		ChunkLength:      raw.ChunkLength,
		OwnerToken:       raw.OwnerToken,
	}
	if err := validate.Struct(desc); err != nil {
		return ChunkDescriptor{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return desc, nil
}

// ParseCreate validates a session-creation request.
func ParseCreate(ownerToken, totalSize string) (CreateDescriptor, error) {
	size, err := parseSize("total size", totalSize)
	if err != nil {
		return CreateDescriptor{}, err
	}

	desc := CreateDescriptor{
		OwnerToken: ownerToken,
		TotalSize:  size,
	}
	if err := validate.Struct(desc); err != nil {
		return CreateDescriptor{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return desc, nil
}

// DecodeFileName decodes a base64url+URI-encoded UTF-8 file name.
func DecodeFileName(encoded string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("%w: missing file name", ErrMalformed)
	}

	// Tolerate both padded and unpadded base64url.
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", fmt.Errorf("%w: file name is not base64url: %s", ErrMalformed, err)
	}

	// PathUnescape, not QueryUnescape: '+' in a file name is a literal
	// plus, matching what encodeURIComponent produces.
	name, err := url.PathUnescape(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: file name is not URI-encoded: %s", ErrMalformed, err)
	}

	if name == "" {
		return "", fmt.Errorf("%w: empty file name", ErrMalformed)
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: file name is not valid UTF-8", ErrMalformed)
	}
	return name, nil
}

// EncodeFileName is the inverse of DecodeFileName, provided for clients
// and tests.
func EncodeFileName(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url.PathEscape(name)))
}

// parseSize parses a decimal byte count from a header value.
func parseSize(label, value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, label)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformed, label)
	}
	return n, nil
}
