package handlers

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"sonaged-backend/internal/models"
	"sonaged-backend/pkg/utils"

	"github.com/rs/zerolog/log"
)

// ReportAPI is what the HTTP layer needs from the report service.
type ReportAPI interface {
	CreateReport(ctx context.Context, report *models.Report) error
	ListReports(ctx context.Context) ([]models.ReportResponse, error)
	GetStats(ctx context.Context) (*models.ReportStats, error)
	SnapshotReports(ctx context.Context) ([]models.ReportResponse, error)
	DeleteReport(ctx context.Context, id string) error
	RefreshSnapshot(ctx context.Context) (int, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// GetReports returns all reports, newest first
func GetReports(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := svc.ListReports(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("❌ Failed to list reports")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch reports")
			return
		}
		utils.NoStore(w, http.StatusOK, reports)
	}
}

// CreateReport accepts a report submitted by a web form
func CreateReport(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		report, errs := validateCreateReport(req)
		if len(errs) > 0 {
			utils.RespondValidation(w, errs)
			return
		}

		if err := svc.CreateReport(r.Context(), report); err != nil {
			log.Error().Err(err).Msg("❌ Failed to create report")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save report")
			return
		}

		utils.JSON(w, http.StatusCreated, map[string]interface{}{
			"status": "ok",
			"report": report.ToReportResponse(),
		})
	}
}

func validateCreateReport(req models.CreateReportRequest) (*models.Report, map[string]string) {
	errs := map[string]string{}

	name := strings.TrimSpace(req.ReporterName)
	if name == "" {
		errs["reporter_name"] = "required"
	}
	category := strings.TrimSpace(req.Category)
	switch {
	case category == "":
		errs["category"] = "required"
	case !models.ValidCategory(category):
		errs["category"] = "must be one of " + strings.Join(models.Categories, ", ")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		errs["description"] = "required"
	}

	lat, latOK := parseCoordinate(req.Latitude, 90)
	if req.Latitude != nil && !latOK {
		errs["latitude"] = "must be a number between -90 and 90"
	}
	lon, lonOK := parseCoordinate(req.Longitude, 180)
	if req.Longitude != nil && !lonOK {
		errs["longitude"] = "must be a number between -180 and 180"
	}
	if req.Latitude == nil || req.Longitude == nil {
		errs["location"] = "latitude and longitude are required"
	}

	if len(errs) > 0 {
		return nil, errs
	}

	report := &models.Report{
		ReporterName: name,
		Category:     category,
		Description:  description,
		Latitude:     lat,
		Longitude:    lon,
		Channel:      models.ChannelAPI,
	}
	if req.PhotoRef != nil && strings.TrimSpace(*req.PhotoRef) != "" {
		ref := strings.TrimSpace(*req.PhotoRef)
		report.PhotoRef = &ref
	}
	return report, nil
}

// parseCoordinate accepts a JSON number or numeric string within ±limit.
func parseCoordinate(v interface{}, limit float64) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > limit {
		return 0, false
	}
	return f, true
}

// GetStats returns totals by category and day with the latest reports
func GetStats(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.GetStats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("❌ Failed to compute stats")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to compute stats")
			return
		}
		utils.NoStore(w, http.StatusOK, stats)
	}
}

// GetSnapshot serves the JSON snapshot read by the static map
func GetSnapshot(svc ReportAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := svc.SnapshotReports(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("❌ Failed to read snapshot")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to read reports")
			return
		}
		utils.NoStore(w, http.StatusOK, reports)
	}
}
