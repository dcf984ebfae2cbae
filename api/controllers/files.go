package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

type fileFetcher interface {
	FetchFile(ctx context.Context, tokenString string) (*uploads.FileOutput, error)
	OpenBlob(blobPath string) (io.ReadCloser, error)
}

// ServeFile streams the bytes behind a token after checksum
// verification. ?dl=1 forces a download disposition.
func ServeFile(svc fileFetcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.FetchFile(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rc, err := svc.OpenBlob(out.BlobPath)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", out.Mimetype)
		if out.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(out.Size, 10))
		}
		disposition := "inline"
		if r.URL.Query().Get("dl") == "1" {
			disposition = "attachment"
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, out.Name))

		if _, err := io.Copy(w, rc); err != nil && logg != nil {
			ctx := logg.WithField(r.Context(), "blob_path", out.BlobPath)
			logg.Warn(ctx, "file stream interrupted")
		}
	}
}
