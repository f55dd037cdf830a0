package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/A-Boumard/zest-wiki/internal/chunkstore"
	"github.com/A-Boumard/zest-wiki/internal/tempfile"
)

const publicZone = "public"

// FinalFile is the permanent handle a successful finalize returns.
type FinalFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

// Promoter moves a verified assembled file into permanent storage. A promoter
// that takes ownership of the scratch file marks it preserved; otherwise the
// file stays the caller's to release.
type Promoter interface {
	Promote(ctx context.Context, tmp *tempfile.TempFile, destName string) (*FinalFile, error)
}

// fileAdopter is the optional backend capability of taking ownership of a
// local file instead of copying its bytes.
type fileAdopter interface {
	AdoptFile(ctx context.Context, srcPath, path string) error
}

// BackendPromoter stores assembled files in the blob backend under a hashed
// public path. The destination key carries a fresh UUID so uploads sharing a
// file name never collide.
type BackendPromoter struct {
	backend chunkstore.Backend
}

func NewBackendPromoter(backend chunkstore.Backend) *BackendPromoter {
	return &BackendPromoter{backend: backend}
}

func (p *BackendPromoter) Promote(ctx context.Context, tmp *tempfile.TempFile, destName string) (*FinalFile, error) {
	info, err := os.Stat(tmp.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to stat assembled file: %w", err)
	}

	key := fmt.Sprintf("%s-%s", uuid.New().String(), destName)
	finalPath := chunkstore.HashedPath(publicZone, key)

	if err := p.store(ctx, tmp, finalPath); err != nil {
		return nil, &chunkstore.BackendError{Op: "promote", Path: finalPath, Err: err}
	}

	final := &FinalFile{
		Name: destName,
		Path: finalPath,
		Size: info.Size(),
	}
	final.URL, _ = p.backend.GetURL(ctx, finalPath)

	return final, nil
}

// store hands the assembled file over by rename when the backend can adopt
// local files, and copies its bytes otherwise. A rename can fail across
// filesystems; the copy path covers that too.
func (p *BackendPromoter) store(ctx context.Context, tmp *tempfile.TempFile, finalPath string) error {
	if adopter, ok := p.backend.(fileAdopter); ok {
		if err := adopter.AdoptFile(ctx, tmp.Path(), finalPath); err == nil {
			tmp.Preserve()
			return nil
		}
	}

	file, err := os.Open(tmp.Path())
	if err != nil {
		return err
	}
	defer file.Close()

	return p.backend.Store(ctx, finalPath, file)
}
