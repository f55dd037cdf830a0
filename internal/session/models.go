package session

type Status string

const (
	StatusActive     Status = "active"
	StatusFinalizing Status = "finalizing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// UploadSession is the durable coordination record of one chunked upload,
// keyed by the opaque handle the client echoes back on every call. The row is
// the only state shared between the HTTP round-trips of a session; no field
// may be assumed to survive in process memory between calls.
//
// Offset and ChunkIndex always trail physical reality: a chunk is durably
// stored before the record advances, so a crash leaves the record at or
// behind what the chunk store holds, never ahead.
type UploadSession struct {
	Key            string `json:"key"`
	FileName       string `json:"fileName"`
	DeclaredSize   int64  `json:"declaredSize"`
	Offset         int64  `json:"offset"`
	ChunkIndex     int    `json:"chunkIndex"`
	FirstChunkPath string `json:"-"`
	Status         Status `json:"status"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}
