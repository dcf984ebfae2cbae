package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	"github.com/bureaudocs/filedepot-backend/api/validators"
	"github.com/bureaudocs/filedepot-backend/internal/postprocess"
	"github.com/bureaudocs/filedepot-backend/internal/tokens"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

type tokenIssuer interface {
	IssueReadToken(ctx context.Context, uploadUUID uuid.UUID, opts tokens.IssueOptions) (*models.Token, error)
	IssueWriteToken(ctx context.Context, uploadUUID uuid.UUID) (*models.Token, error)
}

type reifier interface {
	Reify(ctx context.Context, uploadUUID uuid.UUID, wanted *enums.PostProcessAction) (*postprocess.ReifyOutcome, error)
}

type readTokenRequest struct {
	WantedPostProcess string     `json:"wanted_post_process,omitempty"`
	CustomTTL         int        `json:"custom_ttl,omitempty" validate:"omitempty,min=1"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

func (req readTokenRequest) wanted() (*enums.PostProcessAction, error) {
	raw := strings.TrimSpace(req.WantedPostProcess)
	if raw == "" {
		return nil, nil
	}
	if raw == string(enums.PostProcessActionOriginal) {
		original := enums.PostProcessActionOriginal
		return &original, nil
	}
	action, err := enums.ParsePostProcessAction(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid wanted_post_process")
	}
	return &action, nil
}

func (req readTokenRequest) issueOptions(wanted *enums.PostProcessAction) tokens.IssueOptions {
	opts := tokens.IssueOptions{
		ExpiresAt: req.ExpiresAt,
		// Serve the modified variant by default; an explicit selector
		// pins the reified output instead.
		ForModified: wanted == nil,
	}
	if req.CustomTTL > 0 {
		opts.TTL = time.Duration(req.CustomTTL) * time.Second
	}
	return opts
}

func progressLink(baseURL string, jobUUID uuid.UUID) string {
	return fmt.Sprintf("%s/post-processing/%s/progress", strings.TrimRight(baseURL, "/"), jobUUID)
}

func writeReadToken(w http.ResponseWriter, token *models.Token) {
	responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
		"token":       token.Token,
		"upload_uuid": token.UploadUUID.String(),
		"expires_at":  token.ExpiresAt,
	})
}

// ReadToken issues a READ token, reifying the wanted post-processing
// output first. A still-running job yields 206 with a progress link, a
// failed job yields the captured per-action errors.
func ReadToken(issuer tokenIssuer, pp reifier, baseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload uuid"))
			return
		}

		var payload readTokenRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		wanted, err := payload.wanted()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := pp.Reify(r.Context(), uploadUUID, wanted)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch outcome.State {
		case postprocess.ReifyPending:
			responses.WriteSuccessStatus(w, http.StatusPartialContent, map[string]any{
				"links":           map[string]string{"progress": progressLink(baseURL, outcome.Job.UUID)},
				"action_statuses": outcome.ActionStatuses,
			})
			return
		case postprocess.ReifyFailed:
			failure := pkgerrors.New(pkgerrors.CodeAsyncFailed, "post-processing failed").WithDetails(map[string]any{
				"errors": outcome.Errors,
				"links":  map[string]string{"progress": progressLink(baseURL, outcome.Job.UUID)},
			})
			responses.WriteError(r.Context(), logg, w, failure)
			return
		}

		token, err := issuer.IssueReadToken(r.Context(), outcome.Upload.UUID, payload.issueOptions(wanted))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeReadToken(w, token)
	}
}

// WriteToken issues a fresh one-shot WRITE token for an upload.
func WriteToken(issuer tokenIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload uuid"))
			return
		}

		token, err := issuer.IssueWriteToken(r.Context(), uploadUUID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeReadToken(w, token)
	}
}

type readTokensRequest struct {
	UUIDs             []uuid.UUID `json:"uuids" validate:"required,min=1"`
	WantedPostProcess string      `json:"wanted_post_process,omitempty"`
	CustomTTL         int         `json:"custom_ttl,omitempty" validate:"omitempty,min=1"`
}

// ReadTokens issues READ tokens for a batch of uploads, reporting a
// token or an error per UUID.
func ReadTokens(issuer tokenIssuer, pp reifier, baseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload readTokensRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		single := readTokenRequest{WantedPostProcess: payload.WantedPostProcess, CustomTTL: payload.CustomTTL}
		wanted, err := single.wanted()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := make(map[string]any, len(payload.UUIDs))
		for _, uploadUUID := range payload.UUIDs {
			entry, err := readTokenEntry(r.Context(), issuer, pp, baseURL, uploadUUID, wanted, single.issueOptions(wanted))
			if err != nil {
				body[uploadUUID.String()] = errorEntry(err)
				continue
			}
			body[uploadUUID.String()] = entry
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, body)
	}
}

func readTokenEntry(ctx context.Context, issuer tokenIssuer, pp reifier, baseURL string, uploadUUID uuid.UUID, wanted *enums.PostProcessAction, opts tokens.IssueOptions) (map[string]any, error) {
	outcome, err := pp.Reify(ctx, uploadUUID, wanted)
	if err != nil {
		return nil, err
	}

	switch outcome.State {
	case postprocess.ReifyPending:
		return map[string]any{
			"pending": true,
			"links":   map[string]string{"progress": progressLink(baseURL, outcome.Job.UUID)},
		}, nil
	case postprocess.ReifyFailed:
		return nil, pkgerrors.New(pkgerrors.CodeAsyncFailed, "post-processing failed").WithDetails(outcome.Errors)
	}

	token, err := issuer.IssueReadToken(ctx, outcome.Upload.UUID, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"token": token.Token, "expires_at": token.ExpiresAt}, nil
}

func errorEntry(err error) map[string]any {
	typed := pkgerrors.As(err)
	if typed == nil {
		return map[string]any{"error": map[string]string{"code": string(pkgerrors.CodeInternal), "message": "unexpected error"}}
	}
	return map[string]any{"error": map[string]string{
		"code":    string(typed.Code()),
		"message": typed.Message(),
	}}
}
