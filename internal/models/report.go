package models

import "time"

// ReportedAtLayout is the wire format of report timestamps.
const ReportedAtLayout = "2006-01-02 15:04:05"

// Report categories offered by the intake conversation.
const (
	CategoryDumping = "Dumping"
	CategoryFullBin = "Full bin"
	CategoryOther   = "Other"
)

// Categories lists the report categories in menu order.
var Categories = []string{CategoryDumping, CategoryFullBin, CategoryOther}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Channels a report can arrive through.
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
	ChannelAPI      = "api"
	ChannelImport   = "import"
)

type Report struct {
	ID           string    `json:"id" db:"id"`
	ReportedAt   time.Time `json:"reported_at" db:"reported_at"`
	ReporterName string    `json:"reporter_name" db:"reporter_name"`
	Category     string    `json:"category" db:"category"`
	Description  string    `json:"description" db:"description"`
	PhotoRef     *string   `json:"photo_ref,omitempty" db:"photo_ref"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	Channel      string    `json:"channel" db:"channel"`
}

// ReportResponse is what map and dashboard viewers receive
type ReportResponse struct {
	ID           string  `json:"id"`
	ReportedAt   string  `json:"reported_at"`
	ReporterName string  `json:"reporter_name"`
	Category     string  `json:"category"`
	Description  string  `json:"description"`
	PhotoRef     *string `json:"photo_ref"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Channel      string  `json:"channel"`
}

// CreateReportRequest is the request body for POST /api/reports.
// Coordinates are kept raw so "14.7" and 14.7 are both accepted.
type CreateReportRequest struct {
	ReporterName string      `json:"reporter_name"`
	Category     string      `json:"category"`
	Description  string      `json:"description"`
	PhotoRef     *string     `json:"photo_ref,omitempty"`
	Latitude     interface{} `json:"latitude"`
	Longitude    interface{} `json:"longitude"`
}

// ReportStats aggregates reports for the dashboard
type ReportStats struct {
	Total      int              `json:"total"`
	ByCategory map[string]int   `json:"by_category"`
	ByDay      map[string]int   `json:"by_day"`
	Latest     []ReportResponse `json:"latest"`
}

// CategoryCount and DayCount are rows of the aggregate queries.
type CategoryCount struct {
	Category string `db:"category"`
	Count    int    `db:"count"`
}

type DayCount struct {
	Day   string `db:"day"`
	Count int    `db:"count"`
}

// ToReportResponse converts a Report to ReportResponse
func (r *Report) ToReportResponse() ReportResponse {
	return ReportResponse{
		ID:           r.ID,
		ReportedAt:   r.ReportedAt.Format(ReportedAtLayout),
		ReporterName: r.ReporterName,
		Category:     r.Category,
		Description:  r.Description,
		PhotoRef:     r.PhotoRef,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Channel:      r.Channel,
	}
}

// ToReportResponses converts a slice, preserving order.
func ToReportResponses(reports []Report) []ReportResponse {
	responses := make([]ReportResponse, len(reports))
	for i := range reports {
		responses[i] = reports[i].ToReportResponse()
	}
	return responses
}

// HasPhoto reports whether a photo reference is attached.
func (r *Report) HasPhoto() bool {
	return r.PhotoRef != nil && *r.PhotoRef != ""
}
