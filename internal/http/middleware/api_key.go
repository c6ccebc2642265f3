package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ubva/crm-scheduler/pkg/logging"
)

// APIKeyHeader carries the automation secret.
const APIKeyHeader = "x-api-key"

// APIKey admits requests whose x-api-key header matches secret. With an
// empty secret nothing is admitted.
func APIKey(secret string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	want := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get(APIKeyHeader)))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				logger.Warn("api key rejected", "path", r.URL.Path, "remote_ip", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
