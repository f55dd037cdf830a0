package session

import "errors"

var (
	ErrNotFound       = errors.New("upload session not found")
	ErrStaleOffset    = errors.New("session offset changed since read")
	ErrStatusConflict = errors.New("session status does not allow transition")
)

// Repository persists upload sessions. Get must observe the latest committed
// write for a key; the coordinator's offset arbitration depends on reads that
// are not stale.
type Repository interface {
	Insert(session *UploadSession) error
	Get(key string) (*UploadSession, error)
	// AdvanceProgress moves the session's offset and chunk index forward,
	// but only if the stored offset still equals fromOffset and the session
	// is still active. A lost race, against another append or against a
	// finalize or sweep that claimed the session, returns ErrStaleOffset and
	// leaves the row untouched.
	AdvanceProgress(key string, fromOffset, toOffset int64, chunkIndex int) error
	// SetStatus transitions the session to the given status when its current
	// status is one of allowedFrom, otherwise ErrStatusConflict.
	SetStatus(key string, to Status, allowedFrom ...Status) error
	// Delete removes the session. With allowedFrom given, the row is only
	// removed while its status is one of them; the conditional delete is how
	// expiry loses cleanly to a concurrent finalize.
	Delete(key string, allowedFrom ...Status) error
	// ListExpired returns sessions in one of the given statuses whose last
	// update is older than the cutoff (unix seconds).
	ListExpired(cutoff int64, statuses ...Status) ([]*UploadSession, error)
}
