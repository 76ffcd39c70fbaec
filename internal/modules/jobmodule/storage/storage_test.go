package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
)

func newUploadStore(t *testing.T, maxBytes int64) *UploadStore {
	t.Helper()
	store, err := NewUploadStore(t.TempDir(), maxBytes, nil, hclog.NewNullLogger())
	require.NoError(t, err)
	return store
}

func TestUploadStore_Save(t *testing.T) {
	store := newUploadStore(t, 0)
	assert.Equal(t, DefaultMaxUploadBytes, store.MaxBytes())

	path, n, err := store.Save("My Holiday.MP4", strings.NewReader("video-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.True(t, strings.HasSuffix(path, "_My_Holiday.MP4"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

func TestUploadStore_UniqueNames(t *testing.T) {
	store := newUploadStore(t, 0)

	a, _, err := store.Save("clip.mp4", strings.NewReader("a"))
	require.NoError(t, err)
	b, _, err := store.Save("clip.mp4", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestUploadStore_RejectsExtension(t *testing.T) {
	store := newUploadStore(t, 0)

	for _, name := range []string{"notes.txt", "archive", "song.mp3"} {
		_, _, err := store.Save(name, strings.NewReader("x"))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, joberrors.ErrUploadRejected))
		assert.Equal(t, "UploadRejected", joberrors.Code(err))
	}
}

func TestUploadStore_TooLarge(t *testing.T) {
	store := newUploadStore(t, 4)

	_, _, err := store.Save("big.mkv", bytes.NewReader(make([]byte, 5)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, joberrors.ErrUploadTooLarge))

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "oversize upload must not be left on disk")

	_, _, err = store.Save("fits.mkv", bytes.NewReader(make([]byte, 4)))
	assert.NoError(t, err)
}

func TestUploadStore_PathTraversalName(t *testing.T) {
	store := newUploadStore(t, 0)

	path, _, err := store.Save("../../etc/evil.mov", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, store.dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_evil.mov"))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "clip.mp4", safeName("clip.mp4"))
	assert.Equal(t, "a_b.webm", safeName(`C:\videos\a b.webm`))
	assert.Equal(t, "upload.mp4", safeName("???.mp4"))
	assert.Equal(t, "upload.mp4", safeName(".mp4"))
}

func TestArtifactStore_CommitAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir, hclog.NewNullLogger())
	require.NoError(t, err)

	tmp := store.TempPath("video_ab12cd34.mp4")
	require.NoError(t, os.WriteFile(tmp, []byte("encoded"), 0644))

	ref, size, err := store.Commit(tmp, "video_ab12cd34.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video_ab12cd34.mp4", ref)
	assert.Equal(t, int64(7), size)
	assert.NoFileExists(t, tmp)

	f, info, err := store.Open(ref)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(7), info.Size())
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))
}

func TestArtifactStore_CommitRequiresOutput(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	_, _, err = store.Commit(store.TempPath("missing.mp4"), "missing.mp4")
	assert.Error(t, err)

	empty := store.TempPath("empty.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, _, err = store.Commit(empty, "empty.mp4")
	assert.Error(t, err)
}

func TestArtifactStore_OpenNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("x"), 0644))

	for _, ref := range []string{"nope.mp4", "../secret.txt", "", ".partial", "a/b.mp4"} {
		_, _, err := store.Open(ref)
		require.Error(t, err, ref)
		assert.True(t, errors.Is(err, joberrors.ErrNotFound), ref)
	}
}

func TestArtifactStore_Discard(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	tmp := store.TempPath("x.mp4")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0644))
	store.Discard(tmp)
	assert.NoFileExists(t, tmp)

	store.Discard(tmp)
}

func TestArtifactStore_Remove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir, hclog.NewNullLogger())
	require.NoError(t, err)

	tmp := store.TempPath("clip_ab12cd34.mp4")
	require.NoError(t, os.WriteFile(tmp, []byte("encoded"), 0644))
	ref, _, err := store.Commit(tmp, "clip_ab12cd34.mp4")
	require.NoError(t, err)

	outside := filepath.Join(filepath.Dir(dir), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))

	store.Remove("../keep.txt")
	assert.FileExists(t, outside, "refs never escape the output directory")

	store.Remove(ref)
	assert.NoFileExists(t, filepath.Join(dir, ref))
	store.Remove(ref)
}
