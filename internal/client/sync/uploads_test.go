package sync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-app/pensieve/internal/client/store"
	"github.com/pensieve-app/pensieve/internal/syncerr"
)

type fakeUploader struct {
	key       string
	uploads   [][]byte
	uploadErr error
	failTimes int
}

func (f *fakeUploader) PresignUpload(ctx context.Context) (string, string, error) {
	return f.key, "https://blob.example/put", nil
}

func (f *fakeUploader) Upload(ctx context.Context, url string, data []byte) error {
	if f.failTimes > 0 {
		f.failTimes--
		return syncerr.New(syncerr.KindNetwork, "put failed")
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, data)
	return nil
}

func writeAudioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.m4a")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func saveCaptureWithAudio(t *testing.T, repos *store.Repositories, id, path string, ts int64) {
	t.Helper()
	r := rec(id, 0, map[string]string{"text": "note", fieldAudioPath: path})
	require.NoError(t, repos.Records[store.BellwetherEntity].Save(context.Background(), &r, ts))
}

func TestAudioUploadSwapsPathForKey(t *testing.T) {
	ctx := context.Background()
	repos, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	path := writeAudioFile(t, "audio-bytes")
	saveCaptureWithAudio(t, repos, "c1", path, 1000)

	up := &fakeUploader{key: "audio/c1.m4a"}
	svc := NewAudioUploads(repos, up, nil, func() int64 { return 2000 })

	n, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, up.uploads, 1)
	assert.Equal(t, "audio-bytes", string(up.uploads[0]))

	got, err := repos.Records[store.BellwetherEntity].Get(ctx, "c1")
	require.NoError(t, err)
	assert.NotContains(t, got.Fields, fieldAudioPath)

	var key string
	require.NoError(t, json.Unmarshal(got.Fields[fieldAudioKey], &key))
	assert.Equal(t, "audio/c1.m4a", key)

	// The swap bumped the timestamp so the change rides the next push.
	assert.Equal(t, int64(2000), got.LastModifiedAt)
}

func TestAudioUploadRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	repos, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	path := writeAudioFile(t, "x")
	saveCaptureWithAudio(t, repos, "c1", path, 1000)

	up := &fakeUploader{key: "k", failTimes: 1}
	svc := NewAudioUploads(repos, up, nil, func() int64 { return 2000 })

	n, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, up.uploads, 1)
}

func TestAudioUploadMissingFileIsSkipped(t *testing.T) {
	ctx := context.Background()
	repos, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	saveCaptureWithAudio(t, repos, "c1", "/nonexistent/audio.m4a", 1000)
	good := writeAudioFile(t, "ok")
	saveCaptureWithAudio(t, repos, "c2", good, 1001)

	up := &fakeUploader{key: "k"}
	svc := NewAudioUploads(repos, up, nil, func() int64 { return 2000 })

	n, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The broken capture keeps its local path for a later retry.
	got, err := repos.Records[store.BellwetherEntity].Get(ctx, "c1")
	require.NoError(t, err)
	assert.Contains(t, got.Fields, fieldAudioPath)
}

func TestAudioUploadIgnoresRecordsWithoutAudio(t *testing.T) {
	ctx := context.Background()
	repos, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	r := rec("c1", 0, map[string]string{"text": "no audio here"})
	require.NoError(t, repos.Records[store.BellwetherEntity].Save(ctx, &r, 1000))

	up := &fakeUploader{key: "k"}
	svc := NewAudioUploads(repos, up, nil, func() int64 { return 2000 })

	n, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, up.uploads)
}
