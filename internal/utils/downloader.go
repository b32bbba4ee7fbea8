package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDownloadTimeout = 2 * time.Minute
	MaxDownloadSize        = 25 * 1024 * 1024 // 25MB, the Messenger attachment ceiling
)

// DownloadedFile represents a downloaded file with its metadata
type DownloadedFile struct {
	Content     []byte
	ContentType string
	Filename    string
	Size        int64
}

// FileDownloader handles downloading attachments from platform CDNs
type FileDownloader struct {
	client  *http.Client
	maxSize int64
}

// NewFileDownloader creates a new file downloader with default settings
func NewFileDownloader() *FileDownloader {
	return &FileDownloader{
		client: &http.Client{
			Timeout: DefaultDownloadTimeout,
		},
		maxSize: MaxDownloadSize,
	}
}

// WithMaxSize overrides the size ceiling.
func (d *FileDownloader) WithMaxSize(n int64) *FileDownloader {
	d.maxSize = n
	return d
}

// DownloadFile downloads a file from the given URL. bearerToken is sent as an
// Authorization header when non-empty (WhatsApp media URLs require it).
func (d *FileDownloader) DownloadFile(ctx context.Context, fileURL string, bearerToken string) (*DownloadedFile, error) {
	Zlog.Debug("Starting file download", zap.String("url", fileURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status code %d", resp.StatusCode)
	}

	if resp.ContentLength > d.maxSize {
		return nil, fmt.Errorf("file size exceeds maximum allowed size: %d bytes", d.maxSize)
	}

	// Read one byte past the limit so oversize bodies without Content-Length are caught.
	content, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("file size exceeds maximum allowed size: %d bytes", d.maxSize)
	}

	Zlog.Debug("File downloaded successfully",
		zap.String("url", fileURL),
		zap.Int("size", len(content)))

	return &DownloadedFile{
		Content:     content,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    extractFilenameFromURL(fileURL),
		Size:        int64(len(content)),
	}, nil
}

func extractFilenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "downloaded_file"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "downloaded_file"
	}
	return name
}
