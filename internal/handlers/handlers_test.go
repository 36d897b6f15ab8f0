package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sonaged-backend/internal/database"
	"sonaged-backend/internal/middleware"
	"sonaged-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReports struct {
	mu        sync.Mutex
	created   []models.Report
	deleted   []string
	createErr error
	listErr   error
	refreshed int
}

func (f *fakeReports) CreateReport(_ context.Context, r *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	r.ID = "new-id"
	f.created = append(f.created, *r)
	return nil
}

func (f *fakeReports) ListReports(context.Context) ([]models.ReportResponse, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []models.ReportResponse{{ID: "b"}, {ID: "a"}}, nil
}

func (f *fakeReports) GetStats(context.Context) (*models.ReportStats, error) {
	return &models.ReportStats{
		Total:      3,
		ByCategory: map[string]int{models.CategoryDumping: 3},
		ByDay:      map[string]int{"2025-03-15": 3},
	}, nil
}

func (f *fakeReports) SnapshotReports(context.Context) ([]models.ReportResponse, error) {
	return []models.ReportResponse{{ID: "snap"}}, nil
}

func (f *fakeReports) DeleteReport(_ context.Context, id string) error {
	if id != "known" {
		return database.ErrReportNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeReports) RefreshSnapshot(context.Context) (int, error) {
	f.refreshed++
	return 2, nil
}

func (f *fakeReports) ExportCSV(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "id,category\nb,Dumping\n")
	return err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeStats struct{}

func (fakeStats) Sessions() int      { return 4 }
func (fakeStats) Conversations() int { return 1 }

const adminToken = "test-admin-token"

func newTestRouter(t *testing.T, reports *fakeReports) http.Handler {
	t.Helper()
	auth, err := middleware.NewAdminAuth(adminToken, "jwt-secret")
	require.NoError(t, err)
	return NewRouter(RouterDeps{
		Reports: reports,
		Admin:   auth,
		DB:      fakePinger{},
		Stats:   fakeStats{},
	})
}

func serve(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestGetReports(t *testing.T) {
	rec := serve(newTestRouter(t, &fakeReports{}), http.MethodGet, "/api/reports", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))

	var reports []models.ReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "b", reports[0].ID)
}

func TestGetReportsError(t *testing.T) {
	rec := serve(newTestRouter(t, &fakeReports{listErr: errors.New("db down")}), http.MethodGet, "/api/reports", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateReport(t *testing.T) {
	reports := &fakeReports{}
	h := newTestRouter(t, reports)

	body := `{"reporter_name":"Awa","category":"Dumping","description":"Rubble","latitude":"14.7","longitude":-17.45,"photo_ref":" "}`
	rec := serve(h, http.MethodPost, "/api/reports", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, reports.created, 1)
	got := reports.created[0]
	assert.Equal(t, 14.7, got.Latitude)
	assert.Equal(t, -17.45, got.Longitude)
	assert.Equal(t, models.ChannelAPI, got.Channel)
	assert.Nil(t, got.PhotoRef)

	resp := decode(t, rec)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "new-id", resp["report"].(map[string]interface{})["id"])
}

func TestCreateReportValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"empty", `{}`, []string{"reporter_name", "category", "description", "location"}},
		{"unknown category", `{"reporter_name":"A","category":"Graffiti","description":"x","latitude":1,"longitude":1}`, []string{"category"}},
		{"non numeric", `{"reporter_name":"A","category":"Other","description":"x","latitude":"north","longitude":1}`, []string{"latitude"}},
		{"out of range", `{"reporter_name":"A","category":"Other","description":"x","latitude":1,"longitude":200}`, []string{"longitude"}},
		{"one coordinate", `{"reporter_name":"A","category":"Other","description":"x","latitude":1}`, []string{"location"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &fakeReports{}
			rec := serve(newTestRouter(t, reports), http.MethodPost, "/api/reports", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			errs := decode(t, rec)["errors"].(map[string]interface{})
			for _, f := range tt.fields {
				assert.Contains(t, errs, f)
			}
			assert.Empty(t, reports.created)
		})
	}
}

func TestCreateReportBadJSON(t *testing.T) {
	rec := serve(newTestRouter(t, &fakeReports{}), http.MethodPost, "/api/reports", "{", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndSnapshot(t *testing.T) {
	h := newTestRouter(t, &fakeReports{})

	rec := serve(h, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.Equal(t, float64(3), stats["total"])
	assert.Equal(t, float64(3), stats["by_category"].(map[string]interface{})["Dumping"])

	rec = serve(h, http.MethodGet, "/reports.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"snap"`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t, &fakeReports{})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/reports"},
		{http.MethodGet, "/api/admin/reports.csv"},
		{http.MethodDelete, "/api/admin/reports/known"},
		{http.MethodPost, "/api/admin/snapshot/refresh"},
	} {
		rec := serve(h, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, route.path)
	}
}

func TestAdminDelete(t *testing.T) {
	reports := &fakeReports{}
	h := newTestRouter(t, reports)
	auth := map[string]string{middleware.AdminTokenHeader: adminToken}

	rec := serve(h, http.MethodDelete, "/api/admin/reports/known", "", auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"known"}, reports.deleted)
	assert.Equal(t, "token", decode(t, rec)["deleted_via"])

	rec = serve(h, http.MethodDelete, "/api/admin/reports/missing", "", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCSVAndRefresh(t *testing.T) {
	reports := &fakeReports{}
	h := newTestRouter(t, reports)

	rec := serve(h, http.MethodGet, "/api/admin/reports.csv?token="+adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "id,category\nb,Dumping\n", rec.Body.String())

	rec = serve(h, http.MethodPost, "/api/admin/snapshot/refresh", "", map[string]string{middleware.AdminTokenHeader: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])
	assert.Equal(t, 1, reports.refreshed)
}

func TestAdminLoginFlow(t *testing.T) {
	h := newTestRouter(t, &fakeReports{})

	rec := serve(h, http.MethodPost, "/api/admin/login", `{"token":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodPost, "/api/admin/login", `{"token":"`+adminToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode(t, rec)
	jwt, _ := login["token"].(string)
	require.NotEmpty(t, jwt)

	rec = serve(h, http.MethodGet, "/api/admin/reports", "", map[string]string{"Authorization": "Bearer " + jwt})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodDelete, "/api/admin/reports/known", "", map[string]string{"Authorization": "Bearer " + jwt})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "session", decode(t, rec)["deleted_via"])
}

func TestHealth(t *testing.T) {
	rec := serve(newTestRouter(t, &fakeReports{}), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(4), body["sessions"])

	auth, err := middleware.NewAdminAuth("", "")
	require.NoError(t, err)
	down := NewRouter(RouterDeps{Reports: &fakeReports{}, Admin: auth, DB: fakePinger{err: errors.New("refused")}})
	rec = serve(down, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(down, http.MethodGet, "/hc", "", nil)
	assert.Equal(t, "ok", rec.Body.String())
}
