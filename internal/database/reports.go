package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sonaged-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrReportNotFound = errors.New("report not found")

const reportColumns = `id, reported_at, reporter_name, category, description, photo_ref, latitude, longitude, channel`

// ReportRepository is the record store for incident reports. Rows are only
// ever inserted or deleted.
type ReportRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db, now: time.Now}
}

// Insert assigns ID and ReportedAt (server local time, whole seconds) and stores the row.
func (r *ReportRepository) Insert(ctx context.Context, report *models.Report) error {
	if err := validate(report); err != nil {
		return err
	}

	report.ID = uuid.New().String()
	report.ReportedAt = r.now().Truncate(time.Second)
	if report.Channel == "" {
		report.Channel = models.ChannelTelegram
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES (:id, :reported_at, :reporter_name, :category, :description, :photo_ref, :latitude, :longitude, :channel)
	`, report)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// InsertImported stores a row that already carries its timestamp (CSV import).
func (r *ReportRepository) InsertImported(ctx context.Context, report *models.Report) error {
	if err := validate(report); err != nil {
		return err
	}
	if report.ReportedAt.IsZero() {
		return errors.New("imported report needs a timestamp")
	}

	report.ID = uuid.New().String()
	report.Channel = models.ChannelImport

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES (:id, :reported_at, :reporter_name, :category, :description, :photo_ref, :latitude, :longitude, :channel)
	`, report)
	if err != nil {
		return fmt.Errorf("failed to insert imported report: %w", err)
	}
	return nil
}

// List returns all reports, newest first.
func (r *ReportRepository) List(ctx context.Context) ([]models.Report, error) {
	reports := []models.Report{}
	err := r.db.SelectContext(ctx, &reports, `
		SELECT `+reportColumns+`
		FROM reports
		ORDER BY reported_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// Latest returns at most limit reports, newest first.
func (r *ReportRepository) Latest(ctx context.Context, limit int) ([]models.Report, error) {
	reports := []models.Report{}
	err := r.db.SelectContext(ctx, &reports, `
		SELECT `+reportColumns+`
		FROM reports
		ORDER BY reported_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest reports: %w", err)
	}
	return reports, nil
}

// Between returns reports with from <= reported_at < to, oldest first.
func (r *ReportRepository) Between(ctx context.Context, from, to time.Time) ([]models.Report, error) {
	reports := []models.Report{}
	err := r.db.SelectContext(ctx, &reports, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE reported_at >= $1 AND reported_at < $2
		ORDER BY reported_at ASC, id ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports between %s and %s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), err)
	}
	return reports, nil
}

func (r *ReportRepository) Get(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := r.db.GetContext(ctx, &report, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return &report, nil
}

// Delete removes exactly the row with id, or returns ErrReportNotFound.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *ReportRepository) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	counts := []models.CategoryCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT category, COUNT(*) AS count
		FROM reports
		GROUP BY category
		ORDER BY count DESC, category ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by category: %w", err)
	}
	return counts, nil
}

func (r *ReportRepository) CountByDay(ctx context.Context) ([]models.DayCount, error) {
	counts := []models.DayCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT TO_CHAR(reported_at, 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM reports
		GROUP BY day
		ORDER BY day ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by day: %w", err)
	}
	return counts, nil
}

func validate(report *models.Report) error {
	var missing []string
	if strings.TrimSpace(report.ReporterName) == "" {
		missing = append(missing, "reporter_name")
	}
	if strings.TrimSpace(report.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(report.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid report: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
