// Package upload coordinates chunked uploads: session creation, strictly
// ordered chunk appends, and assembly of the stored chunks into one verified,
// promoted file. The coordinator holds no session state between calls; the
// durable record is reloaded at the start of every operation so any process
// can serve any call of a session.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/A-Boumard/zest-wiki/internal/chunkstore"
	"github.com/A-Boumard/zest-wiki/internal/session"
	"github.com/A-Boumard/zest-wiki/internal/tempfile"
	"github.com/A-Boumard/zest-wiki/internal/verify"
)

const defaultMaxUploadSize = 4 * 1024 * 1024 * 1024

type Coordinator struct {
	repo          session.Repository
	store         *chunkstore.ChunkStore
	verifier      verify.Verifier
	tempFiles     *tempfile.Factory
	promoter      Promoter
	maxUploadSize int64
}

func NewCoordinator(repo session.Repository, store *chunkstore.ChunkStore, verifier verify.Verifier, tempFiles *tempfile.Factory, promoter Promoter, maxUploadSize int64) *Coordinator {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Coordinator{
		repo:          repo,
		store:         store,
		verifier:      verifier,
		tempFiles:     tempFiles,
		promoter:      promoter,
		maxUploadSize: maxUploadSize,
	}
}

// CreateSession stores the first chunk and only then inserts the session
// record. A failed store write leaves no record behind; a crash between the
// two leaves an unreferenced chunk, never a record claiming bytes that are
// not stored.
func (c *Coordinator) CreateSession(ctx context.Context, initial []byte, declaredSize int64, fileName string) (*session.UploadSession, error) {
	size := int64(len(initial))
	if declaredSize > c.maxUploadSize {
		return nil, fmt.Errorf("%w: declared %d bytes (max %d)", ErrFileTooLarge, declaredSize, c.maxUploadSize)
	}
	if size > c.maxUploadSize {
		return nil, fmt.Errorf("%w: first chunk is %d bytes (max %d)", ErrFileTooLarge, size, c.maxUploadSize)
	}

	if pv, ok := c.verifier.(verify.PartialVerifiable); ok {
		if err := pv.CheckPartial(initial); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrChunkVerification, err)
		}
	}

	key := uuid.New().String()
	chunkKey := c.store.ChunkKey(key, 0)

	if err := c.store.Write(ctx, chunkKey, initial); err != nil {
		log.Error().Err(err).Str("sessionKey", key).Msg("[UPLOAD] First chunk write failed")
		return nil, err
	}

	now := time.Now().Unix()
	sess := &session.UploadSession{
		Key:            key,
		FileName:       fileName,
		DeclaredSize:   declaredSize,
		Offset:         size,
		ChunkIndex:     0,
		FirstChunkPath: c.store.HashedLocation(chunkKey),
		Status:         session.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := c.repo.Insert(sess); err != nil {
		if delErr := c.store.Delete(ctx, chunkKey); delErr != nil {
			log.Warn().Err(delErr).Str("sessionKey", key).Msg("[UPLOAD] Failed to remove first chunk after record insert failure")
		}
		return nil, fmt.Errorf("failed to insert session record: %w", err)
	}

	log.Info().
		Str("sessionKey", key).
		Int64("offset", size).
		Int64("declaredSize", declaredSize).
		Msg("[UPLOAD] Session created")

	return sess, nil
}

// AppendChunk validates and stores the next chunk of a session. The durable
// record is the only source of truth for the pre-append offset: the size
// bound is enforced first, then the offset match, then content screening,
// and nothing is written if any of them fails. The chunk write completes
// before the record advances, so the record never runs ahead of the store.
func (c *Coordinator) AppendChunk(ctx context.Context, key string, chunk []byte, claimedOffset int64) (*session.UploadSession, error) {
	sess, err := c.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrSessionNotActive, sess.Status)
	}

	size := int64(len(chunk))
	if sess.Offset+size > c.maxUploadSize {
		c.markFailed(key, session.StatusActive)
		return nil, fmt.Errorf("%w: %d + %d bytes exceeds the %d byte limit", ErrFileTooLarge, sess.Offset, size, c.maxUploadSize)
	}

	if claimedOffset != sess.Offset {
		return nil, fmt.Errorf("%w: claimed %d, session is at %d", ErrInvalidChunkOffset, claimedOffset, sess.Offset)
	}

	if pv, ok := c.verifier.(verify.PartialVerifiable); ok {
		if err := pv.CheckPartial(chunk); err != nil {
			c.markFailed(key, session.StatusActive)
			return nil, fmt.Errorf("%w: %w", ErrChunkVerification, err)
		}
	}

	newIndex := sess.ChunkIndex + 1
	if err := c.store.Write(ctx, c.store.ChunkKey(key, newIndex), chunk); err != nil {
		log.Error().Err(err).Str("sessionKey", key).Int("chunkIndex", newIndex).Msg("[UPLOAD] Chunk write failed")
		return nil, err
	}

	if err := c.repo.AdvanceProgress(key, sess.Offset, sess.Offset+size, newIndex); err != nil {
		if errors.Is(err, session.ErrStaleOffset) {
			// Lost a race: another append at the same offset landed first, or
			// a finalize claimed the session after the read above. Either way
			// the record did not take these bytes; the chunk written here is
			// unreferenced until the sweep reclaims the session.
			return nil, fmt.Errorf("%w: session advanced or left active concurrently", ErrInvalidChunkOffset)
		}
		return nil, fmt.Errorf("failed to advance session record: %w", err)
	}

	sess.Offset += size
	sess.ChunkIndex = newIndex

	log.Info().
		Str("sessionKey", key).
		Int("chunkIndex", newIndex).
		Int64("offset", sess.Offset).
		Msg("[UPLOAD] Chunk appended")

	return sess, nil
}

// Status answers from the durable record only, so a fresh process reports
// exactly what the last successful append committed.
func (c *Coordinator) Status(ctx context.Context, key string) (*session.UploadSession, error) {
	return c.repo.Get(key)
}

// Finalize assembles the session's chunks, in index order, into one verified
// file and promotes it to permanent storage. The active→finalizing
// transition is the guard that keeps a concurrent expiry sweep or second
// finalize out. A concatenation fault returns the session to active with its
// chunks untouched, so the same call can be retried; verification and
// promotion failures are terminal.
func (c *Coordinator) Finalize(ctx context.Context, key, destName string) (*FinalFile, error) {
	if err := c.repo.SetStatus(key, session.StatusFinalizing, session.StatusActive); err != nil {
		if errors.Is(err, session.ErrStatusConflict) {
			if sess, getErr := c.repo.Get(key); getErr == nil {
				return nil, fmt.Errorf("%w: status is %s", ErrSessionNotActive, sess.Status)
			}
			return nil, ErrSessionNotActive
		}
		return nil, err
	}

	// Re-read after the transition: AdvanceProgress refuses sessions that
	// left active, so no append can land past this point and the chunk index
	// read here is final.
	sess, err := c.repo.Get(key)
	if err != nil {
		c.reactivate(key)
		return nil, fmt.Errorf("failed to reload session record: %w", err)
	}

	if destName == "" {
		destName = sess.FileName
	}

	keys := make([]string, 0, sess.ChunkIndex+1)
	for i := 0; i <= sess.ChunkIndex; i++ {
		keys = append(keys, c.store.ChunkKey(key, i))
	}

	tmp, err := c.tempFiles.Acquire()
	if err != nil {
		c.reactivate(key)
		return nil, fmt.Errorf("failed to acquire scratch file: %w", err)
	}
	defer func() {
		if err := tmp.Release(); err != nil {
			log.Warn().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Failed to release scratch file")
		}
	}()

	status := c.store.Concatenate(ctx, keys, tmp.Path(), true)
	for _, entry := range status.Entries() {
		evt := log.Warn()
		if entry.Severity == chunkstore.SeverityError {
			evt = log.Error()
		}
		evt.Err(entry.Cause).
			Str("sessionKey", key).
			Str("code", entry.Code).
			Str("path", entry.Path).
			Msg("[UPLOAD] Concatenation reported a problem")
	}
	if !status.OK() {
		c.reactivate(key)
		return nil, fmt.Errorf("%w: %w", ErrConcatenation, status.Err())
	}

	if err := c.verifier.CheckFull(ctx, tmp.Path()); err != nil {
		c.markFailed(key, session.StatusFinalizing)
		return nil, fmt.Errorf("%w: %w", ErrVerification, err)
	}

	final, err := c.promoter.Promote(ctx, tmp, destName)
	if err != nil {
		log.Error().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Promotion failed")
		c.markFailed(key, session.StatusFinalizing)
		return nil, fmt.Errorf("%w: %w", ErrPromotion, err)
	}

	if err := c.repo.SetStatus(key, session.StatusComplete, session.StatusFinalizing); err != nil {
		return nil, fmt.Errorf("failed to mark session complete: %w", err)
	}

	log.Info().
		Str("sessionKey", key).
		Str("path", final.Path).
		Int64("size", final.Size).
		Msg("[UPLOAD] Session finalized")

	return final, nil
}

// Abandon removes a session's record and chunks. The record is deleted
// first, guarded on status: once it is gone no finalize can start, and if a
// finalize already claimed the session the guarded delete refuses and not a
// single chunk is touched.
func (c *Coordinator) Abandon(ctx context.Context, key string) error {
	sess, err := c.repo.Get(key)
	if err != nil {
		return err
	}
	if sess.Status == session.StatusFinalizing || sess.Status == session.StatusComplete {
		return fmt.Errorf("%w: status is %s", ErrSessionNotActive, sess.Status)
	}

	if err := c.repo.Delete(key, session.StatusActive, session.StatusFailed); err != nil {
		if errors.Is(err, session.ErrStatusConflict) {
			return fmt.Errorf("%w: claimed by finalize", ErrSessionNotActive)
		}
		return err
	}

	for i := 0; i <= sess.ChunkIndex; i++ {
		if err := c.store.Delete(ctx, c.store.ChunkKey(key, i)); err != nil {
			log.Warn().Err(err).Str("sessionKey", key).Int("chunkIndex", i).Msg("[UPLOAD] Failed to delete chunk during abandonment")
		}
	}
	// An append whose record update never landed can leave one chunk past
	// the recorded index; remove it opportunistically.
	c.store.Delete(ctx, c.store.ChunkKey(key, sess.ChunkIndex+1))

	log.Info().
		Str("sessionKey", key).
		Int("chunks", sess.ChunkIndex+1).
		Msg("[UPLOAD] Session abandoned")

	return nil
}

// SweepExpired reclaims sessions idle longer than ttl. Only active and
// failed sessions are eligible; finalizing and complete ones are never
// expired.
func (c *Coordinator) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	expired, err := c.repo.ListExpired(cutoff, session.StatusActive, session.StatusFailed)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, sess := range expired {
		if err := c.Abandon(ctx, sess.Key); err != nil {
			log.Warn().Err(err).Str("sessionKey", sess.Key).Msg("[SWEEP] Failed to reclaim expired session")
			continue
		}
		reclaimed++
	}

	return reclaimed, nil
}

func (c *Coordinator) markFailed(key string, from session.Status) {
	if err := c.repo.SetStatus(key, session.StatusFailed, from); err != nil {
		log.Warn().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Failed to mark session failed")
	}
}

func (c *Coordinator) reactivate(key string) {
	if err := c.repo.SetStatus(key, session.StatusActive, session.StatusFinalizing); err != nil {
		log.Warn().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Failed to return session to active")
	}
}
