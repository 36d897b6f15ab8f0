package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"sonaged-backend/internal/models"
	"sonaged-backend/internal/snapshot"
	"sonaged-backend/internal/websocket"

	"github.com/rs/zerolog/log"
)

// LatestReportsLimit is how many reports the stats endpoint embeds.
const LatestReportsLimit = 20

// ReportRepository is the record store the service writes through.
type ReportRepository interface {
	Insert(ctx context.Context, report *models.Report) error
	InsertImported(ctx context.Context, report *models.Report) error
	List(ctx context.Context) ([]models.Report, error)
	Latest(ctx context.Context, limit int) ([]models.Report, error)
	Between(ctx context.Context, from, to time.Time) ([]models.Report, error)
	Delete(ctx context.Context, id string) error
	CountByCategory(ctx context.Context) ([]models.CategoryCount, error)
	CountByDay(ctx context.Context) ([]models.DayCount, error)
}

// EventBroadcaster pushes live events to dashboards.
type EventBroadcaster interface {
	Broadcast(eventType string, data interface{})
}

// ReportService owns every write to the reports table and keeps the JSON
// snapshot and live dashboards in step with it.
type ReportService struct {
	repo     ReportRepository
	snapshot *snapshot.File
	events   EventBroadcaster

	// snapMu spans the database read and the file write so a slower refresh
	// cannot overwrite a newer one.
	snapMu sync.Mutex
}

// NewReportService builds the service. snap and events may be nil.
func NewReportService(repo ReportRepository, snap *snapshot.File, events EventBroadcaster) *ReportService {
	return &ReportService{repo: repo, snapshot: snap, events: events}
}

// CreateReport persists a report and assigns its ID and timestamp. Only the
// insert can fail it; snapshot refresh problems are logged.
func (s *ReportService) CreateReport(ctx context.Context, report *models.Report) error {
	if err := s.repo.Insert(ctx, report); err != nil {
		return err
	}

	log.Info().
		Str("report_id", report.ID).
		Str("category", report.Category).
		Str("channel", report.Channel).
		Bool("photo", report.HasPhoto()).
		Msg("✅ Report saved")

	s.refreshAfterWrite(ctx)
	if s.events != nil {
		s.events.Broadcast(websocket.EventReportCreated, report.ToReportResponse())
	}
	return nil
}

// ImportReports inserts historical reports, then rewrites the snapshot once.
// It returns how many rows were imported; failing rows are logged and skipped.
func (s *ReportService) ImportReports(ctx context.Context, reports []models.Report) (int, error) {
	imported := 0
	for i := range reports {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if err := s.repo.InsertImported(ctx, &reports[i]); err != nil {
			log.Warn().Err(err).Int("row", i+1).Msg("⚠️ Skipping report")
			continue
		}
		imported++
	}
	if imported > 0 {
		s.refreshAfterWrite(ctx)
	}
	return imported, nil
}

// DeleteReport removes a report. database.ErrReportNotFound passes through.
func (s *ReportService) DeleteReport(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Str("report_id", id).Msg("🗑 Report deleted")

	s.refreshAfterWrite(ctx)
	if s.events != nil {
		s.events.Broadcast(websocket.EventReportDeleted, map[string]string{"id": id})
	}
	return nil
}

// ListReports returns every report, newest first.
func (s *ReportService) ListReports(ctx context.Context) ([]models.ReportResponse, error) {
	reports, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return models.ToReportResponses(reports), nil
}

// ReportsBetween returns the reports in [from, to), oldest first.
func (s *ReportService) ReportsBetween(ctx context.Context, from, to time.Time) ([]models.Report, error) {
	return s.repo.Between(ctx, from, to)
}

// GetStats aggregates totals by category and day plus the latest reports.
func (s *ReportService) GetStats(ctx context.Context) (*models.ReportStats, error) {
	byCategory, err := s.repo.CountByCategory(ctx)
	if err != nil {
		return nil, err
	}
	byDay, err := s.repo.CountByDay(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.Latest(ctx, LatestReportsLimit)
	if err != nil {
		return nil, err
	}

	stats := &models.ReportStats{
		ByCategory: make(map[string]int, len(byCategory)),
		ByDay:      make(map[string]int, len(byDay)),
		Latest:     models.ToReportResponses(latest),
	}
	for _, c := range byCategory {
		stats.ByCategory[c.Category] = c.Count
		stats.Total += c.Count
	}
	for _, d := range byDay {
		stats.ByDay[d.Day] = d.Count
	}
	return stats, nil
}

// RefreshSnapshot rewrites the snapshot from the database and returns the
// number of reports written.
func (s *ReportService) RefreshSnapshot(ctx context.Context) (int, error) {
	if s.snapshot == nil {
		return 0, errors.New("no snapshot file configured")
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	reports, err := s.ListReports(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.snapshot.Write(reports); err != nil {
		return 0, err
	}
	return len(reports), nil
}

// SnapshotReports serves the snapshot, falling back to the database (and
// rewriting the snapshot) when the file is missing, empty or unreadable.
func (s *ReportService) SnapshotReports(ctx context.Context) ([]models.ReportResponse, error) {
	if s.snapshot != nil {
		reports, err := s.snapshot.Load()
		if err == nil {
			return reports, nil
		}
		if !errors.Is(err, snapshot.ErrEmpty) {
			log.Warn().Err(err).Str("path", s.snapshot.Path()).Msg("⚠️ Snapshot unreadable, reading database")
		}
	}

	if s.snapshot == nil {
		return s.ListReports(ctx)
	}

	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	reports, err := s.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.snapshot.Write(reports); err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to rewrite snapshot")
	}
	return reports, nil
}

// ExportCSV writes every report as CSV, newest first.
func (s *ReportService) ExportCSV(ctx context.Context, w io.Writer) error {
	reports, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if err := WriteReportsCSV(w, reports); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func (s *ReportService) refreshAfterWrite(ctx context.Context) {
	if s.snapshot == nil {
		return
	}
	if _, err := s.RefreshSnapshot(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to refresh snapshot")
	}
}
