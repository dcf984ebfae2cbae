package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	"github.com/bureaudocs/filedepot-backend/api/validators"
	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

const multipartMemoryLimit = 32 << 20

type uploadLifecycle interface {
	RequestUpload(ctx context.Context, input uploads.RequestUploadInput) (*uploads.RequestUploadOutput, error)
	ConfirmUpload(ctx context.Context, tokenString string, input uploads.ConfirmUploadInput) (uuid.UUID, error)
	DeclareInfected(ctx context.Context, blobPath string) (uuid.UUID, error)
	DeclareDeleted(ctx context.Context, ids []uuid.UUID) error
	Metadata(ctx context.Context, tokenString string) (*uploads.MetadataOutput, error)
	ChangeMetadata(ctx context.Context, tokenString string, patch map[string]any) (*models.Upload, error)
	Duplicate(ctx context.Context, input uploads.DuplicateInput) (map[uuid.UUID]uploads.DuplicateResult, error)
}

// RequestUpload stages a multipart file and returns its one-shot WRITE token.
func RequestUpload(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "missing file part"))
			return
		}
		defer file.Close()

		out, err := svc.RequestUpload(r.Context(), uploads.RequestUploadInput{
			FileName:     header.Filename,
			DeclaredMime: header.Header.Get("Content-Type"),
			Content:      file,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"token":      out.Token.Token,
			"expires_at": out.Token.ExpiresAt,
		})
	}
}

type confirmUploadRequest struct {
	UploadTo                 string         `json:"upload_to,omitempty"`
	DocumentExpirationPolicy string         `json:"document_expiration_policy,omitempty"`
	Metadata                 map[string]any `json:"metadata,omitempty"`
	RelatedModel             string         `json:"related_model,omitempty"`
}

func (req confirmUploadRequest) toInput() (uploads.ConfirmUploadInput, error) {
	input := uploads.ConfirmUploadInput{
		UploadTo:     req.UploadTo,
		RelatedModel: req.RelatedModel,
		Metadata:     req.Metadata,
	}
	if raw := strings.TrimSpace(req.DocumentExpirationPolicy); raw != "" {
		policy, err := enums.ParseExpirationPolicy(raw)
		if err != nil {
			return uploads.ConfirmUploadInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid document_expiration_policy")
		}
		input.Policy = policy
	}
	return input, nil
}

// ConfirmUpload consumes the WRITE token and moves the staged blob to
// its permanent location.
func ConfirmUpload(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := chi.URLParam(r, "token")

		var payload confirmUploadRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		uploadUUID, err := svc.ConfirmUpload(r.Context(), tokenString, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"uuid": uploadUUID.String()})
	}
}

type declareInfectedRequest struct {
	Path string `json:"path" validate:"required"`
}

func DeclareInfected(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload declareInfectedRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		uploadUUID, err := svc.DeclareInfected(r.Context(), payload.Path)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"uuid": uploadUUID.String()})
	}
}

type declareDeletedRequest struct {
	Files []uuid.UUID `json:"files" validate:"required,min=1"`
}

func DeclareDeleted(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload declareDeletedRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeclareDeleted(r.Context(), payload.Files); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// FileMetadata reports the upload's read model for a valid token.
func FileMetadata(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Metadata(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// ChangeMetadata merges a metadata patch behind a WRITE token; the
// stored hash cannot be overwritten.
func ChangeMetadata(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}
		if len(patch) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "empty metadata patch"))
			return
		}

		upload, err := svc.ChangeMetadata(r.Context(), chi.URLParam(r, "token"), patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"uuid":     upload.UUID.String(),
			"metadata": map[string]any(upload.Metadata),
		})
	}
}

type duplicateRequest struct {
	UUIDs              []uuid.UUID          `json:"uuids" validate:"required,min=1"`
	WithModifiedUpload bool                 `json:"with_modified_upload,omitempty"`
	UploadPathByUUID   map[uuid.UUID]string `json:"upload_path_by_uuid,omitempty"`
}

// Duplicate clones uploads, reporting per-UUID success or failure.
func Duplicate(svc uploadLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload duplicateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.Duplicate(r.Context(), uploads.DuplicateInput{
			UUIDs:        payload.UUIDs,
			PathByUUID:   payload.UploadPathByUUID,
			WithModified: payload.WithModifiedUpload,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := make(map[string]any, len(results))
		for id, result := range results {
			if result.Error != "" {
				body[id.String()] = map[string]string{"error": result.Error}
				continue
			}
			body[id.String()] = map[string]string{"upload_id": result.UploadUUID.String()}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, body)
	}
}
