package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"FinOpsLedger/api/auth"
	"FinOpsLedger/api/constants"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	CompanyIDKey contextKey = "company_id"
)

func GetUserIDFromCtx(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

func GetCompanyIDFromCtx(ctx context.Context) string {
	if companyID, ok := ctx.Value(CompanyIDKey).(string); ok {
		return companyID
	}
	return ""
}

// CompanyContextMiddleware resolves the acting user's company once per request
// and attaches user_id and company_id to the request context. Handlers still
// pass both explicitly into core calls; nothing below this layer reads the
// request context.
//
// The user_id travels in the JSON body (or multipart form for uploads), as on
// every mutating route in this codebase.
func CompanyContextMiddleware(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			ct := r.Header.Get(constants.HeaderContentType)
			if strings.HasPrefix(ct, constants.ContentTypeJSON) && (r.Method == "POST" || r.Method == "PUT") {
				var bodyMap map[string]interface{}
				bodyBytes, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(bodyBytes, &bodyMap); err == nil {
					if uid, ok := bodyMap["user_id"].(string); ok {
						userID = uid
					}
				}
				// Reset body for downstream handlers
				r.Body = io.NopCloser(strings.NewReader(string(bodyBytes)))
			} else if strings.HasPrefix(ct, "multipart/form-data") && r.Method == "POST" {
				if err := r.ParseMultipartForm(32 << 20); err == nil {
					userID = r.FormValue("user_id")
				}
			} else if r.Method == "GET" {
				userID = r.URL.Query().Get("user_id")
			}

			if userID == "" {
				log.Println("[ERROR] Missing user_id in request")
				RespondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
				return
			}

			// Validate session
			var session *auth.UserSession
			for _, s := range auth.GetActiveSessions() {
				if s.UserID == userID {
					session = s
					break
				}
			}
			if session == nil {
				log.Println("[ERROR] Invalid session for user_id:", userID)
				RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
				return
			}

			companyID := session.CompanyID
			if companyID == "" {
				// Session predates membership changes; resolve fresh.
				err := db.QueryRow(
					`SELECT company_id FROM company_members WHERE user_id = $1 AND status = 'active' LIMIT 1`,
					userID,
				).Scan(&companyID)
				if err != nil || companyID == "" {
					log.Println("[ERROR] No active company membership for user_id:", userID)
					RespondWithError(w, http.StatusForbidden, constants.ErrNoCompany)
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, CompanyIDKey, companyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
