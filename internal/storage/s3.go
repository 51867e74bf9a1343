package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Provider streams artifacts to an S3 (or S3-compatible) bucket. Uploads
// run multipart so an export never needs to fit in memory or on local disk.
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

func NewS3Provider(client *s3.Client, bucket string) *S3Provider {
	return &S3Provider{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024 // 10MB parts
			u.Concurrency = 5
		}),
		bucket: bucket,
	}
}

// objectContentType maps an artifact key to the Content-Type stored on the
// object, so browsers fetching the download URL handle it sensibly.
func objectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	}
	return "application/octet-stream"
}

func (p *S3Provider) StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	errChan := make(chan error, 1)

	cleaned, err := cleanKey(key)
	if err != nil {
		errChan <- fmt.Errorf("%w: %q", err, key)
		close(errChan)
		return nil, errChan
	}

	// Compression is the caller's concern; the provider moves bytes as-is.
	reader, writer := io.Pipe()

	go func() {
		defer close(errChan)

		slog.Info("Starting S3 upload", "bucket", p.bucket, "key", cleaned)
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(cleaned),
			Body:        reader,
			ContentType: aws.String(objectContentType(cleaned)),
		})

		_ = reader.Close()

		if err != nil {
			slog.Error("S3 upload failed", "key", cleaned, "error", err)
			errChan <- fmt.Errorf("s3 upload failed: %w", err)
			return
		}
		slog.Info("S3 upload finished", "key", cleaned)
		errChan <- nil
	}()

	return writer, errChan
}

func (p *S3Provider) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, key)
	}
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(cleaned),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (p *S3Provider) GetDownloadURL(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, key)
}
