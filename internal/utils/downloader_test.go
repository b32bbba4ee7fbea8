package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	file, err := NewFileDownloader().DownloadFile(context.Background(), srv.URL+"/media/cat.png?sig=1", "tok")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if string(file.Content) != "png-bytes" {
		t.Errorf("Content = %q", file.Content)
	}
	if file.ContentType != "image/png" {
		t.Errorf("ContentType = %q", file.ContentType)
	}
	if file.Filename != "cat.png" {
		t.Errorf("Filename = %q", file.Filename)
	}
}

func TestDownloadFileTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := NewFileDownloader().WithMaxSize(16).DownloadFile(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected size error")
	}
}

func TestDownloadFileNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewFileDownloader().DownloadFile(context.Background(), srv.URL, ""); err == nil {
		t.Fatal("expected error for 404")
	}
}
