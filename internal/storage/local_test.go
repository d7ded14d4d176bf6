package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := BuildImageKey(12, "up1", "banner v2.png")
	assert.Equal(t, "images/12/up1-banner_v2.png", key)

	meta := &Metadata{ContentType: "image/png", OriginalName: "banner v2.png", UploadedBy: 3}
	require.NoError(t, s.Put(ctx, key, []byte("png-bytes"), meta))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got)

	info, err := s.GetInfo(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, ComputeChecksum([]byte("png-bytes")), info.Checksum)
	assert.Equal(t, "image/png", info.ContentType)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, int64(3), info.Metadata.UploadedBy)

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorageMissingKey(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "snapshots/none.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	exists, err := s.Exists(ctx, "snapshots/none.json")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, s.Delete(ctx, "snapshots/none.json"))
}

func TestLocalStorageListAndDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, BuildImportKey("imp_1", "a.png"), []byte("a"), &Metadata{ContentType: "image/png"}))
	require.NoError(t, s.Put(ctx, BuildImportKey("imp_1", "b.png"), []byte("b"), nil))
	require.NoError(t, s.Put(ctx, BuildImageKey(1, "x", "c.png"), []byte("c"), nil))

	keys, err := s.List(ctx, "imports/imp_1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"imports/imp_1/a.png", "imports/imp_1/b.png"}, keys)

	require.NoError(t, s.Delete(ctx, "imports/imp_1/a.png"))
	keys, err = s.List(ctx, "imports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"imports/imp_1/b.png"}, keys)
}

func TestLocalStorageKeysStayInsideBase(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	assert.Equal(t, s.keyToPath("etc/passwd"), s.keyToPath("../../etc/passwd"))
	assert.Equal(t, "upload", sanitizeFilename(""))
	assert.Equal(t, "x.png", sanitizeFilename("../dir/x.png"))
}

func TestBuildKeys(t *testing.T) {
	assert.Equal(t, "images/3/u1-banner_final.png", BuildImageKey(3, "u1", `C:\work\banner final.png`))
	assert.Equal(t, "uploads/u2-a.png", BuildUploadKey("u2", "../../a.png"))
	assert.Equal(t, "imports/imp_1/upload", BuildImportKey("imp_1", ""))
}
