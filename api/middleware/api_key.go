package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

const apiKeyHeader = "X-Api-Key"

// APIKey guards the server-to-server surface with a shared secret.
func APIKey(sharedSecret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(apiKeyHeader)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(sharedSecret)) != 1 {
				ctx := r.Context()
				if logg != nil {
					logCtx := logg.WithField(ctx, "path", r.URL.Path)
					logg.Warn(logCtx, "api_key.rejected")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid api key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
