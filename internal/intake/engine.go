package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sonaged-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// ErrReportNotSaved is returned by Handle when the record store rejects a finalized report.
var ErrReportNotSaved = errors.New("report not saved")

// RecordStore persists finalized reports. It assigns ID and ReportedAt.
type RecordStore interface {
	CreateReport(ctx context.Context, report *models.Report) error
}

// Notifier broadcasts a finalized report. Failures are logged by the engine and otherwise ignored.
type Notifier interface {
	NotifyReport(ctx context.Context, report models.Report) error
}

// Engine drives intake conversations. Events for one identity are processed
// one at a time; events for different identities run independently.
type Engine struct {
	sessions *SessionStore
	store    RecordStore
	notifier Notifier
}

func NewEngine(sessions *SessionStore, store RecordStore, notifier Notifier) *Engine {
	return &Engine{
		sessions: sessions,
		store:    store,
		notifier: notifier,
	}
}

// Handle processes one inbound event and returns the replies for the user.
// The only error is a failed finalize (ErrReportNotSaved); the replies then
// already tell the user.
func (e *Engine) Handle(ctx context.Context, in Inbound) ([]Reply, error) {
	if in.Identity == "" {
		return nil, errors.New("inbound event without conversation identity")
	}
	if in.Payload == nil {
		return nil, fmt.Errorf("inbound event from %s without payload", in.Identity)
	}

	release := e.sessions.Acquire(in.Identity)
	defer release()

	switch {
	case isCommand(in.Payload, CommandCancel):
		e.sessions.Remove(in.Identity)
		return []Reply{textReply(msgCancelled)}, nil
	case isCommand(in.Payload, CommandStart):
		e.sessions.Remove(in.Identity)
		e.sessions.GetOrCreate(in.Identity)
		return []Reply{categoryMenu(msgChooseCategory)}, nil
	}

	sess := e.sessions.GetOrCreate(in.Identity)
	before := sess.Stage

	var (
		replies []Reply
		err     error
	)
	switch sess.Stage {
	case AwaitingCategory:
		replies = e.onCategory(&sess, in.Payload)
	case AwaitingDescription:
		replies = e.onDescription(&sess, in.Payload)
	case AwaitingMediaOrLocation:
		replies, err = e.onMediaOrLocation(ctx, in, &sess)
	case AwaitingPhoto:
		replies = e.onPhoto(&sess, in.Payload)
	case AwaitingLocation:
		replies, err = e.onLocation(ctx, in, &sess)
	default:
		// Unknown stage means a corrupted session; start over.
		e.sessions.Remove(in.Identity)
		e.sessions.GetOrCreate(in.Identity)
		return []Reply{categoryMenu(msgChooseCategory)}, nil
	}

	log.Debug().
		Str("identity", in.Identity).
		Str("from", before.String()).
		Str("to", sess.Stage.String()).
		Msg("intake event handled")

	return replies, err
}

func (e *Engine) onCategory(sess *Session, p Payload) []Reply {
	name, ok := MatchCategory(p)
	if !ok {
		return []Reply{categoryMenu(msgCategoryNotFound)}
	}
	sess.Category = name
	sess.Stage = AwaitingDescription
	e.sessions.Update(*sess)
	return []Reply{textReply(msgAskDescription)}
}

func (e *Engine) onDescription(sess *Session, p Payload) []Reply {
	t, ok := p.(Text)
	if !ok || strings.TrimSpace(t.Value) == "" || strings.HasPrefix(t.Value, "/") {
		return []Reply{textReply(msgDescriptionRequired)}
	}
	sess.Description = strings.TrimSpace(t.Value)
	sess.Stage = AwaitingMediaOrLocation
	e.sessions.Update(*sess)
	return []Reply{mediaOrLocationMenu(msgMediaOrLocation)}
}

func (e *Engine) onMediaOrLocation(ctx context.Context, in Inbound, sess *Session) ([]Reply, error) {
	switch p := in.Payload.(type) {
	case Photo:
		if p.Ref != "" {
			return e.storePhoto(sess, p.Ref), nil
		}
	case Location:
		if lat, lon, ok := p.Coordinates(); ok {
			return e.finalize(ctx, in, sess, lat, lon)
		}
		return []Reply{mediaOrLocationMenu(msgLocationInvalid)}, nil
	case Text:
		if loc, ok := ParseCoordinates(p.Value); ok {
			lat, lon, _ := loc.Coordinates()
			return e.finalize(ctx, in, sess, lat, lon)
		}
	}

	switch {
	case chose(in.Payload, optAttachPhoto):
		sess.Stage = AwaitingPhoto
		e.sessions.Update(*sess)
		return []Reply{photoPrompt(msgAskPhoto)}, nil
	case chose(in.Payload, optSendLocation):
		sess.Stage = AwaitingLocation
		e.sessions.Update(*sess)
		return []Reply{locationPrompt(msgAskLocation)}, nil
	}
	return []Reply{mediaOrLocationMenu(msgMediaOrLocation)}, nil
}

func (e *Engine) onPhoto(sess *Session, p Payload) []Reply {
	if ph, ok := p.(Photo); ok && ph.Ref != "" {
		return e.storePhoto(sess, ph.Ref)
	}
	if chose(p, optSkipPhoto) {
		sess.Stage = AwaitingLocation
		e.sessions.Update(*sess)
		return []Reply{locationPrompt(msgAskLocation)}
	}
	return []Reply{photoPrompt(msgPhotoRequired)}
}

func (e *Engine) onLocation(ctx context.Context, in Inbound, sess *Session) ([]Reply, error) {
	switch p := in.Payload.(type) {
	case Location:
		if lat, lon, ok := p.Coordinates(); ok {
			return e.finalize(ctx, in, sess, lat, lon)
		}
		return []Reply{locationPrompt(msgLocationInvalid)}, nil
	case Text:
		if loc, ok := ParseCoordinates(p.Value); ok {
			lat, lon, _ := loc.Coordinates()
			return e.finalize(ctx, in, sess, lat, lon)
		}
		return []Reply{locationPrompt(msgLocationInvalid)}, nil
	}
	return []Reply{locationPrompt(msgAskLocation)}, nil
}

// storePhoto keeps the first photo only.
func (e *Engine) storePhoto(sess *Session, ref string) []Reply {
	if sess.PhotoRef == "" {
		sess.PhotoRef = ref
	}
	sess.Stage = AwaitingLocation
	e.sessions.Update(*sess)
	return []Reply{locationPrompt(msgPhotoSaved)}
}

func (e *Engine) finalize(ctx context.Context, in Inbound, sess *Session, lat, lon float64) ([]Reply, error) {
	report := &models.Report{
		ReporterName: reporterName(in),
		Category:     sess.Category,
		Description:  sess.Description,
		Latitude:     lat,
		Longitude:    lon,
		Channel:      in.Channel,
	}
	if sess.PhotoRef != "" {
		ref := sess.PhotoRef
		report.PhotoRef = &ref
	}

	if err := e.store.CreateReport(ctx, report); err != nil {
		log.Error().Err(err).
			Str("identity", in.Identity).
			Str("category", report.Category).
			Msg("❌ Failed to save report")
		e.sessions.Update(*sess)
		return []Reply{locationPrompt(msgReportNotSaved)}, fmt.Errorf("%w: %w", ErrReportNotSaved, err)
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyReport(ctx, *report); err != nil {
			log.Warn().Err(err).Str("report_id", report.ID).Msg("⚠️  Report notification failed")
		}
	}

	e.sessions.Remove(in.Identity)
	return []Reply{
		textReply(msgReportSaved),
		categoryMenu(msgChooseCategory),
	}, nil
}

func reporterName(in Inbound) string {
	if name := strings.TrimSpace(in.ReporterName); name != "" {
		return name
	}
	return in.Identity
}
