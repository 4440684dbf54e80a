package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/citybenefits/casebridge/internal/auth"
	"github.com/citybenefits/casebridge/internal/db"
	"go.uber.org/zap"
)

// AuthMiddleware validates the bearer API key the registry presents when
// fetching attachment content.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		apiKey := strings.TrimPrefix(authHeader, "Bearer ")
		prefix, _, err := auth.ParseAPIKey(apiKey)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		storedKey, err := db.GetAPIKeyByPrefix(s.DB, prefix)
		if err != nil || storedKey == nil || storedKey.RevokedAt != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		if !auth.VerifyAPIKey(apiKey, storedKey.KeyHash) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleAttachment serves attachment content so the registry can fetch the
// documents referenced in outbound payloads.
func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	attUUID := r.PathValue("uuid")
	if attUUID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "attachment id required"})
		return
	}

	att, err := db.GetAttachmentByUUID(s.DB, attUUID)
	if err != nil {
		s.Logger.Error("attachment lookup failed", zap.String("attachment_id", attUUID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if att == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "attachment not found"})
		return
	}

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(att.Content)
}
