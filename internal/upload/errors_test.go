package upload

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/A-Boumard/zest-wiki/internal/chunkstore"
	"github.com/A-Boumard/zest-wiki/internal/session"
)

func TestRetriable_ShouldCoverTransientBackendFaults(t *testing.T) {
	backendErr := &chunkstore.BackendError{Op: "write", Path: "chunks/a/ab/key.1", Err: errors.New("disk full")}

	// transient faults may be resent unchanged
	assert.True(t, Retriable(backendErr))
	assert.True(t, Retriable(fmt.Errorf("%w: read broke", ErrConcatenation)))

	// everything else needs a different request, or no request at all
	assert.False(t, Retriable(ErrFileTooLarge))
	assert.False(t, Retriable(ErrInvalidChunkOffset))
	assert.False(t, Retriable(ErrChunkVerification))
	assert.False(t, Retriable(ErrVerification))
	assert.False(t, Retriable(ErrSessionNotActive))
	assert.False(t, Retriable(errors.New("unclassified")))
}

func TestRetriable_ShouldNeverRetryPromotionFaults(t *testing.T) {
	// the chunks are gone after assembly, so even a backend fault inside
	// promotion must not invite a retry
	promotionErr := fmt.Errorf("%w: %w", ErrPromotion,
		&chunkstore.BackendError{Op: "promote", Path: "public/a/ab/key", Err: errors.New("timeout")})

	assert.False(t, Retriable(promotionErr))
	assert.True(t, Terminal(promotionErr))
}

func TestTerminal_ShouldCoverUnrecoverableFailures(t *testing.T) {
	assert.True(t, Terminal(ErrFileTooLarge))
	assert.True(t, Terminal(ErrChunkVerification))
	assert.True(t, Terminal(ErrVerification))
	assert.True(t, Terminal(ErrPromotion))

	assert.False(t, Terminal(ErrInvalidChunkOffset))
	assert.False(t, Terminal(ErrConcatenation))
	assert.False(t, Terminal(ErrSessionNotActive))
	assert.False(t, Terminal(errors.New("unclassified")))
}

func TestErrorCode_ShouldMapErrorsToStableClientCodes(t *testing.T) {
	assert.Equal(t, "session_not_found", ErrorCode(session.ErrNotFound))
	assert.Equal(t, "file_too_large", ErrorCode(fmt.Errorf("%w: 5 bytes over", ErrFileTooLarge)))
	assert.Equal(t, "invalid_chunk_offset", ErrorCode(ErrInvalidChunkOffset))
	assert.Equal(t, "chunk_verification_failed", ErrorCode(ErrChunkVerification))
	assert.Equal(t, "verification_failed", ErrorCode(ErrVerification))
	assert.Equal(t, "concatenation_failed", ErrorCode(ErrConcatenation))
	assert.Equal(t, "promotion_failed", ErrorCode(ErrPromotion))
	assert.Equal(t, "session_not_active", ErrorCode(ErrSessionNotActive))
	assert.Equal(t, "backend_write_failed", ErrorCode(&chunkstore.BackendError{Op: "write", Err: errors.New("boom")}))
	assert.Equal(t, "internal_error", ErrorCode(errors.New("unclassified")))
}
