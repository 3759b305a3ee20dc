package middlewares

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common/utils"
)

// ApiKey validates the X-API-KEY header against the configured backend
// key hashed with the server salt. When no key is configured the check
// is disabled, which is only acceptable for local development.
func ApiKey(apiKey string, salt string) func(http.Handler) http.Handler {
	expected := hashKey(apiKey, salt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				log.Warn().Msg("API key not configured, skipping authentication")
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-KEY")
			if provided == "" {
				utils.WriteError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				utils.WriteError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hashKey(apiKey string, salt string) string {
	sum := sha256.Sum256([]byte(apiKey + salt))
	return hex.EncodeToString(sum[:])
}
