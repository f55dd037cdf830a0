package upload

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/A-Boumard/zest-wiki/internal/chunkstore"
	"github.com/A-Boumard/zest-wiki/internal/tempfile"
)

func acquireScratch(t *testing.T, dir string, content []byte) *tempfile.TempFile {
	t.Helper()

	tmp, err := tempfile.NewFactory(dir, "assemble").Acquire()
	if err != nil {
		t.Fatalf("failed to acquire scratch file: %v", err)
	}
	if err := os.WriteFile(tmp.Path(), content, 0644); err != nil {
		t.Fatalf("failed to fill scratch file: %v", err)
	}
	return tmp
}

func TestBackendPromoter_ShouldAdoptScratchFileOnLocalBackend(t *testing.T) {
	// given a backend that can take ownership of local files
	local, err := chunkstore.NewLocalBackend(&chunkstore.BackendConfig{LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create local backend: %v", err)
	}
	promoter := NewBackendPromoter(local)
	tmp := acquireScratch(t, t.TempDir(), []byte("assembled and verified bytes"))

	// when
	final, err := promoter.Promote(context.Background(), tmp, "report.pdf")

	// then the scratch file was moved, not copied
	assert.NoError(t, err)
	assert.Equal(t, "report.pdf", final.Name)
	assert.Equal(t, int64(28), final.Size)
	assert.True(t, strings.HasPrefix(final.Path, "public/"))

	_, statErr := os.Stat(tmp.Path())
	assert.True(t, os.IsNotExist(statErr), "adopted scratch file must leave the scratch directory")

	reader, err := local.Get(context.Background(), final.Path)
	assert.NoError(t, err)
	defer reader.Close()
	got, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, []byte("assembled and verified bytes"), got)

	// and a deferred release after promotion leaves the promoted blob alone
	assert.NoError(t, tmp.Release())
	exists, err := local.Exists(context.Background(), final.Path)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestBackendPromoter_ShouldCopyWhenBackendCannotAdoptFiles(t *testing.T) {
	// given a backend without the local-file shortcut
	local, err := chunkstore.NewLocalBackend(&chunkstore.BackendConfig{LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create local backend: %v", err)
	}
	backend := newFlakyBackend(local)
	promoter := NewBackendPromoter(backend)
	tmp := acquireScratch(t, t.TempDir(), []byte("copied payload"))

	// when
	final, err := promoter.Promote(context.Background(), tmp, "notes.txt")

	// then the bytes went through Store and the scratch file stays the
	// caller's to release
	assert.NoError(t, err)
	assert.Equal(t, 1, backend.storeCalls)

	_, statErr := os.Stat(tmp.Path())
	assert.NoError(t, statErr)
	assert.NoError(t, tmp.Release())
	_, statErr = os.Stat(tmp.Path())
	assert.True(t, os.IsNotExist(statErr))

	exists, err := backend.Exists(context.Background(), final.Path)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestBackendPromoter_ShouldReportMissingScratchFile(t *testing.T) {
	// given a scratch file already released
	local, err := chunkstore.NewLocalBackend(&chunkstore.BackendConfig{LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create local backend: %v", err)
	}
	promoter := NewBackendPromoter(local)
	tmp := acquireScratch(t, t.TempDir(), []byte("gone"))
	assert.NoError(t, tmp.Release())

	// when
	_, err = promoter.Promote(context.Background(), tmp, "report.pdf")

	// then
	assert.Error(t, err)
}
