package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sonaged-backend/internal/models"
)

// ExportColumns is the header row of the admin CSV export.
var ExportColumns = []string{
	"id", "reported_at", "reporter_name", "category", "description",
	"photo_ref", "latitude", "longitude", "channel",
}

// Columns of the spreadsheet the bot wrote before reports moved to a database.
const (
	legacyDate     = "Date/Heure"
	legacyReporter = "Utilisateur"
	legacyType     = "Type"
	legacyMessage  = "Message"
	legacyLat      = "Latitude"
	legacyLon      = "Longitude"
)

// WriteReportsCSV writes reports in export column order.
func WriteReportsCSV(w io.Writer, reports []models.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, r := range reports {
		photo := ""
		if r.PhotoRef != nil {
			photo = *r.PhotoRef
		}
		row := []string{
			r.ID,
			r.ReportedAt.Format(models.ReportedAtLayout),
			r.ReporterName,
			r.Category,
			r.Description,
			photo,
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
			r.Channel,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLegacyCSV parses the old spreadsheet. Rows that cannot become a report
// (no coordinates, bad timestamp, empty fields) are skipped and reported in
// the returned row errors; a missing header is fatal.
func ReadLegacyCSV(r io.Reader) ([]models.Report, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{legacyDate, legacyReporter, legacyType, legacyMessage, legacyLat, legacyLon} {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}

	var (
		reports []models.Report
		rowErrs []error
	)
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		field := func(col string) string {
			i := index[col]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		report, err := legacyRowToReport(field)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, rowErrs, nil
}

func legacyRowToReport(field func(string) string) (models.Report, error) {
	reportedAt, err := time.ParseInLocation(models.ReportedAtLayout, field(legacyDate), time.Local)
	if err != nil {
		return models.Report{}, fmt.Errorf("bad %s: %w", legacyDate, err)
	}
	lat, err := strconv.ParseFloat(field(legacyLat), 64)
	if err != nil {
		return models.Report{}, fmt.Errorf("bad %s %q", legacyLat, field(legacyLat))
	}
	lon, err := strconv.ParseFloat(field(legacyLon), 64)
	if err != nil {
		return models.Report{}, fmt.Errorf("bad %s %q", legacyLon, field(legacyLon))
	}

	report := models.Report{
		ReportedAt:   reportedAt,
		ReporterName: field(legacyReporter),
		Category:     LegacyCategory(field(legacyType)),
		Description:  field(legacyMessage),
		Latitude:     lat,
		Longitude:    lon,
		Channel:      models.ChannelImport,
	}
	if report.ReporterName == "" || report.Description == "" {
		return models.Report{}, errors.New("reporter and message are required")
	}
	return report, nil
}

// LegacyCategory maps the bot's old French menu labels onto categories.
func LegacyCategory(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "dépôt"), strings.Contains(l, "depot"), strings.Contains(l, "dumping"):
		return models.CategoryDumping
	case strings.Contains(l, "bac plein"), strings.Contains(l, "full bin"):
		return models.CategoryFullBin
	default:
		return models.CategoryOther
	}
}
