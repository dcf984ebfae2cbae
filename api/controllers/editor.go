package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	"github.com/bureaudocs/filedepot-backend/api/validators"
	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

type editorService interface {
	RotateImage(ctx context.Context, tokenString string, degrees int) (*uploads.EditorOutput, error)
	SaveEditor(ctx context.Context, tokenString string, content io.Reader, rotations map[int]int) (*uploads.EditorOutput, error)
}

type rotateImageRequest struct {
	Rotate int `json:"rotate" validate:"required"`
}

// RotateImage rotates the image behind a WRITE token clockwise and
// returns a fresh WRITE token for the stored variant.
func RotateImage(svc editorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload rotateImageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.RotateImage(r.Context(), chi.URLParam(r, "token"), payload.Rotate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeEditorOutput(w, out)
	}
}

// SaveEditor replaces the PDF variant behind a WRITE token with the
// uploaded document, applying per-page rotations when given.
func SaveEditor(svc editorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeMissingFile, err, "missing file part"))
			return
		}
		defer file.Close()

		rotations, err := parseRotations(r.FormValue("rotations"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.SaveEditor(r.Context(), chi.URLParam(r, "token"), file, rotations)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeEditorOutput(w, out)
	}
}

func parseRotations(raw string) (map[int]int, error) {
	if raw == "" {
		return nil, nil
	}
	var byPage map[string]int
	if err := json.Unmarshal([]byte(raw), &byPage); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rotations")
	}
	rotations := make(map[int]int, len(byPage))
	for pageStr, degrees := range byPage {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rotations page")
		}
		rotations[page] = degrees
	}
	return rotations, nil
}

func writeEditorOutput(w http.ResponseWriter, out *uploads.EditorOutput) {
	responses.WriteSuccess(w, map[string]any{
		"token":       out.Token.Token,
		"upload_uuid": out.Upload.UUID.String(),
		"expires_at":  out.Token.ExpiresAt,
	})
}
