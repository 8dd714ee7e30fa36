package telemetryarchive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ArchiveRecord is one decoded sample in its archival shape. A nil Value
// records a null sample.
type ArchiveRecord struct {
	Topic      string    `json:"topic"`
	SensorName string    `json:"sensorName"`
	Timestamp  time.Time `json:"timestamp"`
	Value      *float64  `json:"value"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// BatchKey groups records into one archive object: <topic>/<year>/<month>/<day>/<hour>.
func (r *ArchiveRecord) BatchKey() string {
	ts := r.Timestamp.UTC()
	return fmt.Sprintf("%s/%d/%02d/%02d/%02d", r.Topic, ts.Year(), ts.Month(), ts.Day(), ts.Hour())
}

// ArchiveUploaderConfig holds configuration for the archive uploader.
type ArchiveUploaderConfig struct {
	BucketName   string
	ObjectPrefix string
}

// ArchiveUploader writes batches of records to object storage, one gzipped
// JSONL object per topic/hour group. It satisfies the generic batch-inserter
// contract so it can sit behind a telemetrystore.BatchInserter.
type ArchiveUploader struct {
	client ObjectStorageClient
	config ArchiveUploaderConfig
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewArchiveUploader creates an uploader configured for Google Cloud Storage.
func NewArchiveUploader(
	client ObjectStorageClient,
	config ArchiveUploaderConfig,
	logger zerolog.Logger,
) (*ArchiveUploader, error) {
	if client == nil {
		return nil, errors.New("storage client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	return &ArchiveUploader{
		client: client,
		config: config,
		logger: logger.With().Str("component", "ArchiveUploader").Logger(),
	}, nil
}

// InsertBatch groups records by their batch key and uploads each group to a
// separate compressed object in parallel.
func (u *ArchiveUploader) InsertBatch(ctx context.Context, records []*ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}

	grouped := make(map[string][]*ArchiveRecord)
	for _, rec := range records {
		if rec != nil {
			grouped[rec.BatchKey()] = append(grouped[rec.BatchKey()], rec)
		}
	}
	if len(grouped) == 0 {
		return nil
	}

	var uploadWg sync.WaitGroup
	errs := make(chan error, len(grouped))

	for key, group := range grouped {
		uploadWg.Add(1)
		u.wg.Add(1)

		go func(batchKey string, batch []*ArchiveRecord) {
			defer uploadWg.Done()
			defer u.wg.Done()
			if err := u.uploadGroup(ctx, batchKey, batch); err != nil {
				errs <- err
			}
		}(key, group)
	}

	uploadWg.Wait()
	close(errs)

	var combined []error
	for err := range errs {
		combined = append(combined, err)
	}
	return errors.Join(combined...)
}

func (u *ArchiveUploader) uploadGroup(ctx context.Context, batchKey string, batch []*ArchiveRecord) error {
	objectName := path.Join(u.config.ObjectPrefix, batchKey, fmt.Sprintf("%s.jsonl.gz", uuid.NewString()))
	u.logger.Info().Str("object_name", objectName).Int("record_count", len(batch)).Msg("Starting upload for grouped batch.")

	writer := u.client.Bucket(u.config.BucketName).Object(objectName).NewWriter(ctx)
	pr, pw := io.Pipe()

	// Encode and compress into the pipe while the copy below streams it out.
	go func() {
		var err error
		defer func() { _ = pw.CloseWithError(err) }()
		gz := gzip.NewWriter(pw)
		defer func() { _ = gz.Close() }()
		enc := json.NewEncoder(gz)
		for _, rec := range batch {
			if err = enc.Encode(rec); err != nil {
				err = fmt.Errorf("json encoding failed for %s: %w", objectName, err)
				return
			}
		}
	}()

	bytesWritten, copyErr := io.Copy(writer, pr)
	closeErr := writer.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to stream data for object %s: %w", objectName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close object writer for %s: %w", objectName, closeErr)
	}

	u.logger.Info().
		Str("object_name", objectName).
		Int64("bytes_written", bytesWritten).
		Msg("Successfully uploaded grouped batch.")
	return nil
}

// Close waits for pending uploads. The caller's Stop context bounds the wait.
func (u *ArchiveUploader) Close() error {
	u.logger.Info().Msg("Waiting for all pending uploads to complete...")
	u.wg.Wait()
	return nil
}
