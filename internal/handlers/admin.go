package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sonaged-backend/internal/database"
	"sonaged-backend/internal/middleware"
	"sonaged-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type AdminLoginRequest struct {
	Token string `json:"token"`
}

type AdminLoginResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// AdminLogin exchanges the shared admin token for a session JWT
func AdminLogin(auth *middleware.AdminAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		token, expires, err := auth.Login(req.Token)
		switch {
		case errors.Is(err, middleware.ErrAdminDisabled):
			utils.RespondError(w, http.StatusNotFound, "Admin login is disabled")
			return
		case errors.Is(err, middleware.ErrInvalidAdmin):
			log.Warn().Str("remote", r.RemoteAddr).Msg("❌ Admin login failed")
			utils.JSON(w, http.StatusUnauthorized, AdminLoginResponse{OK: false})
			return
		case err != nil:
			log.Error().Err(err).Msg("❌ Failed to issue admin token")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create token")
			return
		}

		log.Info().Msg("🔐 Admin logged in")
		utils.JSON(w, http.StatusOK, AdminLoginResponse{
			OK:        true,
			Token:     token,
			ExpiresAt: expires.UTC().Format(time.RFC3339),
		})
	}
}

// AdminListReports returns every report straight from the database
func AdminListReports(svc ReportAPI) http.HandlerFunc {
	return GetReports(svc)
}

// AdminExportCSV downloads every report as CSV
func AdminExportCSV(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := fmt.Sprintf("reports-%s.csv", time.Now().Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		w.Header().Set("Cache-Control", "no-store, max-age=0")

		if err := svc.ExportCSV(r.Context(), w); err != nil {
			// Headers may already be out; the truncated file is the only signal left.
			log.Error().Err(err).Msg("❌ CSV export failed")
		}
	}
}

// AdminDeleteReport removes one report
func AdminDeleteReport(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		via := middleware.AuthMethod(r)

		err := svc.DeleteReport(r.Context(), id)
		if errors.Is(err, database.ErrReportNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Report not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("report_id", id).Msg("❌ Failed to delete report")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to delete report")
			return
		}

		log.Info().Str("report_id", id).Str("admin_auth", via).Str("remote", r.RemoteAddr).Msg("🗑 Admin deleted report")

		utils.JSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"message":     "Report deleted and snapshot updated",
			"deleted_via": via,
		})
	}
}

// AdminRefreshSnapshot rebuilds the snapshot from the database
func AdminRefreshSnapshot(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.RefreshSnapshot(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("❌ Failed to refresh snapshot")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to refresh snapshot")
			return
		}

		utils.JSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"count":   n,
			"message": fmt.Sprintf("Snapshot rebuilt with %d reports", n),
		})
	}
}
