package services

import (
	"fmt"
	"strings"

	"sonaged-backend/internal/models"
)

// FormatReportSummary renders the human-readable notification text for a
// finalized report. address and mapURL are optional.
func FormatReportSummary(r models.Report, address, mapURL string) string {
	var b strings.Builder
	b.WriteString("🚨 NEW REPORT\n\n")
	fmt.Fprintf(&b, "📍 Category: %s\n", r.Category)
	fmt.Fprintf(&b, "👤 Reporter: %s\n", r.ReporterName)
	fmt.Fprintf(&b, "📝 Description: %s\n", r.Description)
	fmt.Fprintf(&b, "🌍 Location: %.6f, %.6f\n", r.Latitude, r.Longitude)
	if address != "" {
		fmt.Fprintf(&b, "🏠 Address: %s\n", address)
	}
	fmt.Fprintf(&b, "🕐 Date: %s", r.ReportedAt.Format(models.ReportedAtLayout))
	if r.HasPhoto() {
		b.WriteString("\n📷 Photo attached")
	}
	if mapURL != "" {
		fmt.Fprintf(&b, "\n\nSee on the map: %s", mapURL)
	}
	return b.String()
}
