package services

import (
	"context"
	"errors"
	"fmt"

	"sonaged-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Notification is what every broadcast destination receives for one report.
type Notification struct {
	Report  models.Report
	Summary string
	Address string
}

// Target is one broadcast destination.
type Target interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// AddressResolver turns coordinates into a street address.
type AddressResolver interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error)
}

// Broadcaster fans a finalized report out to every configured target.
// A failing target never stops the others.
type Broadcaster struct {
	targets  []Target
	resolver AddressResolver
	mapURL   string
}

// NewBroadcaster builds a broadcaster. resolver may be nil.
func NewBroadcaster(resolver AddressResolver, mapURL string, targets ...Target) *Broadcaster {
	return &Broadcaster{targets: targets, resolver: resolver, mapURL: mapURL}
}

// Targets returns the names of the configured destinations.
func (b *Broadcaster) Targets() []string {
	names := make([]string, len(b.targets))
	for i, t := range b.targets {
		names[i] = t.Name()
	}
	return names
}

// NotifyReport delivers the report summary to every target and joins the
// failures.
func (b *Broadcaster) NotifyReport(ctx context.Context, r models.Report) error {
	if len(b.targets) == 0 {
		return nil
	}

	n := Notification{Report: r}
	if b.resolver != nil {
		addr, err := b.resolver.ReverseGeocode(ctx, r.Latitude, r.Longitude)
		if err != nil {
			log.Warn().Err(err).Str("report_id", r.ID).Msg("⚠️ Reverse geocoding failed, notifying without address")
		} else {
			n.Address = addr.FormattedAddress
		}
	}
	n.Summary = FormatReportSummary(r, n.Address, b.mapURL)

	var errs []error
	for _, t := range b.targets {
		if err := t.Deliver(ctx, n); err != nil {
			log.Error().Err(err).Str("target", t.Name()).Str("report_id", r.ID).Msg("❌ Notification delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		log.Info().Str("target", t.Name()).Str("report_id", r.ID).Msg("📣 Report broadcast")
	}
	return errors.Join(errs...)
}
