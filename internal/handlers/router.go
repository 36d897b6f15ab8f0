package handlers

import (
	"net/http"

	"sonaged-backend/internal/logger"
	"sonaged-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps are the collaborators the HTTP surface is built from. Webhook
// handlers and the live feed are optional.
type RouterDeps struct {
	Reports         ReportAPI
	Admin           *middleware.AdminAuth
	DB              Pinger
	Stats           HealthStats
	LiveFeed        http.HandlerFunc
	TelegramWebhook http.HandlerFunc
	TelegramPath    string
	WhatsAppVerify  http.HandlerFunc
	WhatsAppReceive http.HandlerFunc
}

// NewRouter wires every route.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.AdminTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/hc", Liveness)
	if d.DB != nil {
		r.Get("/health", Health(d.DB, d.Stats))
	}

	r.Get("/reports.json", GetSnapshot(d.Reports))

	r.Route("/api", func(r chi.Router) {
		r.Get("/reports", GetReports(d.Reports))
		r.Post("/reports", CreateReport(d.Reports))
		r.Get("/stats", GetStats(d.Reports))

		r.Post("/admin/login", AdminLogin(d.Admin))

		r.Group(func(r chi.Router) {
			r.Use(d.Admin.RequireAdmin)

			r.Get("/admin/reports", AdminListReports(d.Reports))
			r.Get("/admin/reports.csv", AdminExportCSV(d.Reports))
			r.Delete("/admin/reports/{id}", AdminDeleteReport(d.Reports))
			r.Post("/admin/snapshot/refresh", AdminRefreshSnapshot(d.Reports))
		})
	})

	if d.LiveFeed != nil {
		r.Get("/ws", d.LiveFeed)
	}
	if d.TelegramWebhook != nil {
		path := d.TelegramPath
		if path == "" {
			path = "/webhook/telegram"
		}
		r.Post(path, d.TelegramWebhook)
	}
	if d.WhatsAppVerify != nil && d.WhatsAppReceive != nil {
		r.Get("/webhook/whatsapp", d.WhatsAppVerify)
		r.Post("/webhook/whatsapp", d.WhatsAppReceive)
	}

	return r
}
