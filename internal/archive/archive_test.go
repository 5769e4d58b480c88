package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/repeater/internal/recordings"
)

type fakeClient struct {
	files map[string]string
	fail  map[string]bool
	quit  bool
}

func (c *fakeClient) Stor(p string, r io.Reader) error {
	if c.fail[p] {
		return errors.New("553 could not create file")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.files[p] = string(data)
	return nil
}

func (c *fakeClient) Quit() error {
	c.quit = true
	return nil
}

func setup(t *testing.T, opts Options, n int) (*Uploader, *recordings.Store, *fakeClient, []recordings.Recording) {
	t.Helper()
	dir := t.TempDir()
	store, err := recordings.Open(filepath.Join(dir, "rec.db"), filepath.Join(dir, "recordings"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	buf := filepath.Join(dir, "buffer.ogg")
	require.NoError(t, os.WriteFile(buf, []byte("OggS"), 0o644))

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	var recs []recordings.Recording
	for i := 0; i < n; i++ {
		end := t0.Add(time.Duration(i) * time.Minute)
		r, err := store.Save(buf, end.Add(-time.Second), end)
		require.NoError(t, err)
		recs = append(recs, r)
	}

	client := &fakeClient{files: map[string]string{}, fail: map[string]bool{}}
	u := NewUploader(opts, store, zerolog.Nop())
	u.dial = func(context.Context) (Client, error) { return client, nil }
	u.now = func() time.Time { return t0.Add(time.Hour) }
	return u, store, client, recs
}

func TestRunUploadsPending(t *testing.T) {
	u, store, client, recs := setup(t, Options{Dir: "/pub/repeater"}, 2)

	res, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Uploaded: 2}, res)
	assert.True(t, client.quit)

	assert.Equal(t, "OggS", client.files["/pub/repeater/20260501100000.ogg"])
	assert.Equal(t, "OggS", client.files["/pub/repeater/20260501100100.ogg"])

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = os.Stat(recs[0].Path)
	assert.NoError(t, err, "local copy kept without delete_on_success")

	res, err = u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res, "nothing left to upload")
}

func TestRunDeleteOnSuccessKeepsFailures(t *testing.T) {
	u, store, client, recs := setup(t, Options{Dir: "up", DeleteOnSuccess: true}, 2)
	client.fail["up/"+recs[1].Name()] = true

	res, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Uploaded: 1, Failed: 1}, res)

	_, err = os.Stat(recs[0].Path)
	assert.ErrorIs(t, err, os.ErrNotExist, "uploaded file removed")
	_, err = os.Stat(recs[1].Path)
	assert.NoError(t, err, "failed upload never deleted")

	pending, err := store.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, recs[1].ID, pending[0].ID, "retried next run")
}

func TestRunConnectFailure(t *testing.T) {
	u, store, _, _ := setup(t, Options{}, 1)
	u.dial = func(context.Context) (Client, error) { return nil, errors.New("connection refused") }

	_, err := u.Run(context.Background())
	assert.Error(t, err)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunNothingPendingDoesNotConnect(t *testing.T) {
	u, _, _, _ := setup(t, Options{}, 0)
	u.dial = func(context.Context) (Client, error) {
		t.Fatal("dialled with nothing to upload")
		return nil, nil
	}

	res, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}
