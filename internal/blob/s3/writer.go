package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// DefaultMultipartThreshold is the payload size above which Put switches to
// a multipart upload. WB sales pages of 80k rows regularly exceed it.
const DefaultMultipartThreshold int64 = 16 * 1024 * 1024

// putObjectAPI is the part of *s3.Client the writer calls directly.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer implements domain.BlobWriter using an S3-compatible backend.
type Writer struct {
	client    putObjectAPI
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	threshold int64
}

// NewWriter creates a Writer for the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = minPartSize
		}),
		bucket:    c.Bucket(),
		prefix:    c.prefix,
		threshold: DefaultMultipartThreshold,
	}
}

// Key returns the full object key for path.
func (w *Writer) Key(path string) string {
	if w.prefix == "" {
		return path
	}
	return strings.TrimSuffix(w.prefix, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Put uploads data under path. Payloads whose size is known and above the
// multipart threshold go through the upload manager; everything else is a
// single PutObject.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	key := w.Key(path)
	if size, ok := knownSize(data); ok && size > w.threshold && w.uploader != nil {
		return w.putMultipart(ctx, key, data, contentType)
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

func (w *Writer) putMultipart(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}

func knownSize(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case *bytes.Reader:
		return int64(v.Len()), true
	case *bytes.Buffer:
		return int64(v.Len()), true
	case *strings.Reader:
		return int64(v.Len()), true
	}
	return 0, false
}

// Compile-time interface check.
var _ domain.BlobWriter = (*Writer)(nil)
