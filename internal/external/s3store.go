package external

import (
	"context"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tasknotifier/internal/types"
)

// S3Putter abstracts the S3 PutObject operation for testability.
// Production code uses the *s3.Client from aws-sdk-go-v2.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiveStore mirrors report archive parts to a bucket.
type S3ArchiveStore struct {
	client S3Putter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3ArchiveStore creates a store writing under bucket/prefix.
func NewS3ArchiveStore(client S3Putter, bucket, prefix string, logger *slog.Logger) *S3ArchiveStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3ArchiveStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// PutArchive uploads the file at p as <prefix>/<key>.
func (s *S3ArchiveStore) PutArchive(ctx context.Context, key, p, mime string) error {
	f, err := os.Open(p)
	if err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "archive part is not readable", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "archive part is not readable", err)
	}

	objectKey := path.Join(s.prefix, key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(mime),
	})
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamStorage,
			"failed to mirror archive part", err,
			map[string]any{"bucket": s.bucket, "key": objectKey})
	}

	s.logger.InfoContext(ctx, "archive part mirrored",
		"bucket", s.bucket,
		"key", objectKey,
		"bytes", info.Size(),
	)
	return nil
}

var _ ArchiveStore = (*S3ArchiveStore)(nil)
