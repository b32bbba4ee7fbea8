package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/utils"
)

const mediaPrefix = "inbox-media"

// Uploader stores file content and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, in UploadInput) (*UploadOutput, error)
}

// Mirror copies platform attachments, whose CDN URLs expire, into our own bucket.
type Mirror struct {
	downloader *utils.FileDownloader
	uploader   Uploader
}

var _ core.MediaMirror = (*Mirror)(nil)

func NewMirror(downloader *utils.FileDownloader, uploader Uploader) *Mirror {
	return &Mirror{downloader: downloader, uploader: uploader}
}

// NewMediaMirror returns nil when S3 is not configured; the pipeline then keeps platform URLs.
func NewMediaMirror(cfg config.S3) (*Mirror, error) {
	if !cfg.Enabled() {
		utils.Zlog.Info("S3 not configured, media mirroring disabled")
		return nil, nil
	}
	s3Storage, err := NewS3Storage(cfg)
	if err != nil {
		return nil, err
	}
	utils.Zlog.Info("Media mirroring enabled", zap.String("bucket", cfg.Bucket))
	return NewMirror(utils.NewFileDownloader(), s3Storage), nil
}

func (m *Mirror) Mirror(ctx context.Context, sourceURL, bearerToken string) (string, error) {
	file, err := m.downloader.DownloadFile(ctx, sourceURL, bearerToken)
	if err != nil {
		return "", err
	}
	if file.Size == 0 {
		return "", fmt.Errorf("downloaded file is empty")
	}

	out, err := m.uploader.Upload(ctx, UploadInput{
		Content:     file.Content,
		ContentType: file.ContentType,
		Filename:    file.Filename,
		Prefix:      mediaPrefix,
	})
	if err != nil {
		return "", err
	}

	utils.Zlog.Debug("Media mirrored",
		zap.String("key", out.Key),
		zap.Int64("size", out.Size))
	return out.URL, nil
}
