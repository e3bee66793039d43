package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/courier/limits"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "panel")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "panel", []byte(`{"WABrowserId":"abc"}`)))
	got, err := s.Load(ctx, "panel")
	require.NoError(t, err)
	assert.Equal(t, `{"WABrowserId":"abc"}`, string(got))

	require.NoError(t, s.Save(ctx, "panel", []byte("v2")))
	got, err = s.Load(ctx, "panel")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	_, err = s.Load(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "panel"))
	_, err = s.Load(ctx, "panel")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "panel"))

	assert.ErrorIs(t, s.Save(ctx, "", []byte("x")), ErrInvalidClientID)
	_, err = s.Load(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidClientID)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := []byte("secret")
	require.NoError(t, s.Save(ctx, "c", data))
	data[0] = 'X'

	got, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), []byte("correct horse"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestFileStoreEncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "panel", []byte("plaintext-credential")))

	raw, err := os.ReadFile(s.path("panel"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plaintext-credential")
	assert.Len(t, raw, 2+len("plaintext-credential")+limits.SealOverhead)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewFileStore(dir, []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "panel", []byte("blob")))

	reopened, err := NewFileStore(dir, []byte("pw"))
	require.NoError(t, err)
	got, err := reopened.Load(ctx, "panel")
	require.NoError(t, err)
	assert.Equal(t, "blob", string(got))

	wrong, err := NewFileStore(dir, []byte("not-pw"))
	require.NoError(t, err)
	_, err = wrong.Load(ctx, "panel")
	assert.ErrorContains(t, err, "authentication failed")
}

func TestFileStoreRejectsTamperedFile(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), []byte("pw"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "panel", []byte("blob")))

	path := s.path("panel")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = s.Load(ctx, "panel")
	assert.Error(t, err)
}

func TestFileStoreClientIDCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(s.path("../../etc/passwd")))
}

func TestSQLStore(t *testing.T) {
	s, err := OpenSQLStore(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestStoresRejectOversizedCredential(t *testing.T) {
	big := make([]byte, limits.MaxCredential+1)
	fs, err := NewFileStore(t.TempDir(), []byte("pw"))
	require.NoError(t, err)
	assert.ErrorIs(t, fs.Save(context.Background(), "c", big), limits.ErrMessageTooLarge)

	sq, err := OpenSQLStore(context.Background(), filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer sq.Close()
	assert.ErrorIs(t, sq.Save(context.Background(), "c", big), limits.ErrMessageTooLarge)
}
