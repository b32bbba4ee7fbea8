package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Conversly/messenger-relay/internal/config"
)

// objectPutter is the subset of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage stores mirrored attachments in an S3-compatible bucket
type S3Storage struct {
	client    objectPutter
	bucket    string
	publicURL string
}

// NewS3Storage creates a new S3 storage client with static credentials.
// An empty endpoint targets AWS; a custom one (MinIO) switches to path-style addressing.
func NewS3Storage(cfg config.S3) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 storage is not configured")
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		if cfg.Endpoint != "" {
			publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &S3Storage{
		client:    s3.New(opts),
		bucket:    cfg.Bucket,
		publicURL: publicURL,
	}, nil
}

// UploadInput represents input for uploading a file
type UploadInput struct {
	Content     []byte
	ContentType string
	Filename    string // used for the extension only
	Prefix      string
}

// UploadOutput represents output from uploading a file
type UploadOutput struct {
	Key        string
	URL        string
	Size       int64
	UploadedAt time.Time
}

// Upload stores the file under {prefix}/{yyyy/mm/dd}/{uuid}{ext} and returns its public URL
func (s *S3Storage) Upload(ctx context.Context, in UploadInput) (*UploadOutput, error) {
	ext := path.Ext(in.Filename)
	if ext == "" {
		ext = extensionFromContentType(in.ContentType)
	}
	key := fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
	if in.Prefix != "" {
		key = strings.Trim(in.Prefix, "/") + "/" + key
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(in.Content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(in.Content))),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading to s3: %w", err)
	}

	return &UploadOutput{
		Key:        key,
		URL:        s.publicURL + "/" + key,
		Size:       int64(len(in.Content)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

func extensionFromContentType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(ct) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}
