package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrImagesDisabled is returned when no bucket is configured.
var ErrImagesDisabled = errors.New("catalog: image storage not configured")

// S3API is the subset of the S3 client used by ImageStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ImageStore uploads product photos to S3.
type ImageStore struct {
	s3Client S3API
	bucket   string
	baseURL  string
}

// NewImageStore returns a store writing to bucket. baseURL is the public
// prefix for uploaded objects; when empty the virtual-hosted S3 URL is used.
func NewImageStore(s3Client S3API, bucket, region, baseURL string) *ImageStore {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" && bucket != "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &ImageStore{s3Client: s3Client, bucket: bucket, baseURL: baseURL}
}

// Enabled reports whether uploads can be performed.
func (s *ImageStore) Enabled() bool {
	return s != nil && s.s3Client != nil && s.bucket != ""
}

// Upload stores the image under produtos/<productID>/<filename> and returns its public URL.
func (s *ImageStore) Upload(ctx context.Context, productID, filename, contentType string, body io.Reader) (string, error) {
	if !s.Enabled() {
		return "", ErrImagesDisabled
	}
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		return "", fmt.Errorf("catalog: unsupported image type %q", ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("produtos/%s/imagem%s", productID, ext)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("catalog: s3 put %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}
