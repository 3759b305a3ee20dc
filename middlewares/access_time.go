package middlewares

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/debtwatch/pgfn-scraper-service/common/utils"
)

type contextKey string

// AccessTimeKey carries the validated request timestamp for downstream
// middlewares.
const AccessTimeKey contextKey = "access_time"

// accessTimeSkew is the maximum clock drift tolerated between client
// and server.
const accessTimeSkew = 5 * time.Minute

// AccessTime validates the X-ACCESS-TIME header: a unix timestamp in
// seconds that must fall within the allowed skew window. The validated
// value is stored in the request context for signature verification.
func AccessTime() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-ACCESS-TIME")
			if raw == "" {
				utils.WriteError(w, http.StatusUnauthorized, "Missing access time")
				return
			}

			seconds, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, "Invalid access time")
				return
			}

			accessTime := time.Unix(seconds, 0)
			drift := time.Since(accessTime)
			if drift < -accessTimeSkew || drift > accessTimeSkew {
				utils.WriteError(w, http.StatusUnauthorized, "Access time outside allowed window")
				return
			}

			ctx := context.WithValue(r.Context(), AccessTimeKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
