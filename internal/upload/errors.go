package upload

import (
	"errors"

	"github.com/A-Boumard/zest-wiki/internal/chunkstore"
	"github.com/A-Boumard/zest-wiki/internal/session"
)

var (
	// ErrFileTooLarge means the append would push the session past the
	// configured maximum upload size. Terminal.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidChunkOffset means the claimed offset does not match the
	// durable offset: a duplicate delivery, an out-of-order chunk, or a lost
	// race. The caller should re-query status and resend the right chunk.
	ErrInvalidChunkOffset = errors.New("invalid chunk offset")

	// ErrChunkVerification means a chunk was rejected by partial content
	// screening. Terminal.
	ErrChunkVerification = errors.New("chunk verification failed")

	// ErrVerification means the assembled file failed full verification.
	// Terminal.
	ErrVerification = errors.New("verification failed")

	// ErrConcatenation means assembly hit a transient backend fault. Source
	// chunks are untouched, so retrying finalize is safe.
	ErrConcatenation = errors.New("concatenation failed")

	// ErrPromotion means the verified file could not be moved to permanent
	// storage. The source chunks were already consumed by assembly, so unlike
	// other backend faults this one is not retriable.
	ErrPromotion = errors.New("promotion failed")

	// ErrSessionNotActive means the session's status does not allow the
	// requested operation (already finalizing, complete, or failed).
	ErrSessionNotActive = errors.New("session not active")
)

// Retriable reports whether the caller may resend the same call unchanged:
// backend write faults and concatenation faults leave the session in a state
// where the identical request can still succeed.
func Retriable(err error) bool {
	if errors.Is(err, ErrPromotion) {
		return false
	}
	var backendErr *chunkstore.BackendError
	return errors.Is(err, ErrConcatenation) || errors.As(err, &backendErr)
}

// Terminal reports whether the upload can never succeed without changing the
// input. Terminal failures mark the session failed.
func Terminal(err error) bool {
	return errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrChunkVerification) ||
		errors.Is(err, ErrVerification) ||
		errors.Is(err, ErrPromotion)
}

// ErrorCode maps an error to the generic code exposed to clients. Structured
// backend detail stays in the server logs.
func ErrorCode(err error) string {
	var backendErr *chunkstore.BackendError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "session_not_found"
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, ErrInvalidChunkOffset):
		return "invalid_chunk_offset"
	case errors.Is(err, ErrChunkVerification):
		return "chunk_verification_failed"
	case errors.Is(err, ErrVerification):
		return "verification_failed"
	case errors.Is(err, ErrConcatenation):
		return "concatenation_failed"
	case errors.Is(err, ErrPromotion):
		return "promotion_failed"
	case errors.Is(err, ErrSessionNotActive):
		return "session_not_active"
	case errors.As(err, &backendErr):
		return "backend_write_failed"
	default:
		return "internal_error"
	}
}
