package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

type stubFetcher struct {
	out     *uploads.FileOutput
	content string
	err     error
}

func (s stubFetcher) FetchFile(ctx context.Context, tokenString string) (*uploads.FileOutput, error) {
	return s.out, s.err
}

func (s stubFetcher) OpenBlob(blobPath string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.content)), nil
}

func TestServeFileStreamsBytes(t *testing.T) {
	svc := stubFetcher{
		out:     &uploads.FileOutput{BlobPath: "2026/01/02/report.pdf", Name: "report.pdf", Mimetype: "application/pdf", Size: 11},
		content: "hello world",
	}
	router := newTestRouter(http.MethodGet, "/file/{token}", ServeFile(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/file/tok-1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Body.String() != "hello world" {
		t.Fatalf("unexpected body: %q", resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Fatalf("unexpected disposition: %s", cd)
	}
}

func TestServeFileDownloadDisposition(t *testing.T) {
	svc := stubFetcher{
		out:     &uploads.FileOutput{BlobPath: "a/b.txt", Name: "b.txt", Mimetype: "text/plain", Size: 2},
		content: "ok",
	}
	router := newTestRouter(http.MethodGet, "/file/{token}", ServeFile(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/file/tok-1?dl=1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	cd := resp.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, `"b.txt"`) {
		t.Fatalf("unexpected disposition: %s", cd)
	}
}

func TestServeFileHashMismatch(t *testing.T) {
	svc := stubFetcher{err: pkgerrors.New(pkgerrors.CodeHashMismatch, "stored hash does not match content")}
	router := newTestRouter(http.MethodGet, "/file/{token}", ServeFile(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/file/tok-1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}
