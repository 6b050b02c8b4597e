package sync

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pensieve-app/pensieve/internal/client/store"
	"github.com/pensieve-app/pensieve/internal/client/store/records"
	"github.com/pensieve-app/pensieve/internal/logging"
	"github.com/pensieve-app/pensieve/internal/retry"
	"github.com/pensieve-app/pensieve/internal/syncerr"
)

// Uploader is the blob side of the remote contract: captures reference audio
// files that travel out of band from the record sync, via presigned URLs.
type Uploader interface {
	// PresignUpload returns a storage key and a presigned PUT URL.
	PresignUpload(ctx context.Context) (key, url string, err error)

	// Upload PUTs data to a presigned URL.
	Upload(ctx context.Context, url string, data []byte) error
}

// Capture field names interpreted by the upload pathway. audioPath points at
// a local file awaiting upload; audioKey is set once the blob is stored.
const (
	fieldAudioPath = "audio_path"
	fieldAudioKey  = "audio_key"
)

// AudioUploads pushes pending capture audio to blob storage. It shares the
// retry/backoff utilities with the sync pathway.
type AudioUploads struct {
	repos    *store.Repositories
	uploader Uploader
	log      logging.Logger
	now      func() int64
}

func NewAudioUploads(repos *store.Repositories, uploader Uploader, log logging.Logger, now func() int64) *AudioUploads {
	return &AudioUploads{repos: repos, uploader: uploader, log: logging.OrNoop(log), now: now}
}

// Run uploads every capture that still references a local audio file.
// Individual failures are logged and skipped; the record keeps its local
// path so the next run retries it.
func (u *AudioUploads) Run(ctx context.Context) (uploaded int, err error) {
	recs := u.repos.Records[store.BellwetherEntity]
	all, err := recs.ModifiedSince(ctx, 0)
	if err != nil {
		return 0, err
	}

	for i := range all {
		rec := all[i]
		if rec.Deleted() {
			continue
		}
		raw, ok := rec.Fields[fieldAudioPath]
		if !ok {
			continue
		}
		var path string
		if err := json.Unmarshal(raw, &path); err != nil || path == "" {
			continue
		}

		if err := u.uploadOne(ctx, recs.Entity(), &rec, path); err != nil {
			u.log.Warn(ctx, "audio upload failed", "capture", rec.ID, "error", err)
			continue
		}
		uploaded++
	}
	return uploaded, nil
}

func (u *AudioUploads) uploadOne(ctx context.Context, entity string, rec *records.Record, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return syncerr.Wrap(syncerr.KindValidation, "failed to read audio file", err)
	}

	key, url, err := u.uploader.PresignUpload(ctx)
	if err != nil {
		return err
	}

	_, err = retry.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, u.uploader.Upload(ctx, url, data)
	}, retry.Options{MaxRetries: 3, Jitter: true})
	if err != nil {
		return err
	}

	// Swap the local path for the storage key; the bumped timestamp makes
	// the change ride the next push.
	keyJSON, _ := json.Marshal(key)
	rec.Fields[fieldAudioKey] = keyJSON
	delete(rec.Fields, fieldAudioPath)
	return u.repos.Records[entity].Save(ctx, rec, u.now())
}
