package session

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(s *UploadSession) error {
	query := `INSERT INTO upload_sessions (upload_key, file_name, declared_size, byte_offset, chunk_index, first_chunk_path, status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(query,
		s.Key,
		s.FileName,
		s.DeclaredSize,
		s.Offset,
		s.ChunkIndex,
		s.FirstChunkPath,
		s.Status,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) Get(key string) (*UploadSession, error) {
	query := `SELECT upload_key, file_name, declared_size, byte_offset, chunk_index, first_chunk_path, status, created_at, updated_at
			  FROM upload_sessions WHERE upload_key = $1`

	s := &UploadSession{}
	err := r.db.QueryRow(query, key).Scan(
		&s.Key,
		&s.FileName,
		&s.DeclaredSize,
		&s.Offset,
		&s.ChunkIndex,
		&s.FirstChunkPath,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// AdvanceProgress is the compare-and-set that arbitrates concurrent appends:
// the WHERE clause only matches while the stored offset equals fromOffset and
// the session is still active. Of two writers racing on the same offset
// exactly one update lands, and an append whose session was claimed by a
// finalize or sweep between its read and this update cannot land at all.
func (r *PostgresRepository) AdvanceProgress(key string, fromOffset, toOffset int64, chunkIndex int) error {
	query := `UPDATE upload_sessions SET byte_offset = $1, chunk_index = $2, updated_at = $3
			  WHERE upload_key = $4 AND byte_offset = $5 AND status = $6`

	result, err := r.db.Exec(query, toOffset, chunkIndex, time.Now().Unix(), key, fromOffset, StatusActive)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the session is gone, another writer moved the offset first,
		// or the session left active; a follow-up read tells gone apart from
		// lost.
		if _, err := r.Get(key); err != nil {
			return err
		}
		return ErrStaleOffset
	}

	return nil
}

func (r *PostgresRepository) SetStatus(key string, to Status, allowedFrom ...Status) error {
	query := `UPDATE upload_sessions SET status = $1, updated_at = $2
			  WHERE upload_key = $3 AND status = ANY($4)`

	result, err := r.db.Exec(query, to, time.Now().Unix(), key, pq.Array(statusStrings(allowedFrom)))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		if _, err := r.Get(key); err != nil {
			return err
		}
		return ErrStatusConflict
	}

	return nil
}

func (r *PostgresRepository) Delete(key string, allowedFrom ...Status) error {
	var result sql.Result
	var err error

	if len(allowedFrom) == 0 {
		result, err = r.db.Exec(`DELETE FROM upload_sessions WHERE upload_key = $1`, key)
	} else {
		result, err = r.db.Exec(`DELETE FROM upload_sessions WHERE upload_key = $1 AND status = ANY($2)`,
			key, pq.Array(statusStrings(allowedFrom)))
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		if len(allowedFrom) > 0 {
			if _, err := r.Get(key); err != nil {
				return err
			}
			return ErrStatusConflict
		}
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) ListExpired(cutoff int64, statuses ...Status) ([]*UploadSession, error) {
	query := `SELECT upload_key, file_name, declared_size, byte_offset, chunk_index, first_chunk_path, status, created_at, updated_at
			  FROM upload_sessions WHERE updated_at < $1 AND status = ANY($2) ORDER BY updated_at`

	rows, err := r.db.Query(query, cutoff, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*UploadSession
	for rows.Next() {
		s := &UploadSession{}
		err := rows.Scan(
			&s.Key,
			&s.FileName,
			&s.DeclaredSize,
			&s.Offset,
			&s.ChunkIndex,
			&s.FirstChunkPath,
			&s.Status,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
