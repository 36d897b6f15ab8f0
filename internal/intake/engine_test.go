package intake

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"sonaged-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	reports []models.Report
	err     error
}

func (s *fakeStore) CreateReport(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	r.ID = "report-" + string(rune('a'+len(s.reports)))
	s.reports = append(s.reports, *r)
	return nil
}

func (s *fakeStore) saved() []models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Report(nil), s.reports...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []models.Report
	err      error
}

func (n *fakeNotifier) NotifyReport(_ context.Context, r models.Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, r)
	return n.err
}

const identity = "telegram:42"

func newTestEngine() (*Engine, *SessionStore, *fakeStore, *fakeNotifier) {
	sessions := NewSessionStore(0)
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	return NewEngine(sessions, store, notifier), sessions, store, notifier
}

func event(p Payload) Inbound {
	return Inbound{Identity: identity, ReporterName: "Awa Ndiaye", Channel: models.ChannelTelegram, Payload: p}
}

func send(t *testing.T, e *Engine, p Payload) []Reply {
	t.Helper()
	replies, err := e.Handle(context.Background(), event(p))
	require.NoError(t, err)
	require.NotEmpty(t, replies)
	return replies
}

func stageOf(t *testing.T, s *SessionStore) Stage {
	t.Helper()
	sess, ok := s.Peek(identity)
	require.True(t, ok, "session should exist")
	return sess.Stage
}

func coord(v float64) *float64 { return &v }

func TestScenarioWithoutPhoto(t *testing.T) {
	e, sessions, store, notifier := newTestEngine()

	send(t, e, Text{Value: "Full bin"})
	send(t, e, Text{Value: "overflowing bin on Main St"})
	replies := send(t, e, NewLocation(14.70, -17.45))

	saved := store.saved()
	require.Len(t, saved, 1)
	r := saved[0]
	assert.Equal(t, "Full bin", r.Category)
	assert.Equal(t, "overflowing bin on Main St", r.Description)
	assert.Nil(t, r.PhotoRef)
	assert.Equal(t, 14.70, r.Latitude)
	assert.Equal(t, -17.45, r.Longitude)
	assert.Equal(t, "Awa Ndiaye", r.ReporterName)
	assert.Equal(t, models.ChannelTelegram, r.Channel)

	require.Len(t, notifier.notified, 1)
	assert.Equal(t, r.ID, notifier.notified[0].ID)

	_, exists := sessions.Peek(identity)
	assert.False(t, exists, "finalize removes the session")

	require.Len(t, replies, 2)
	assert.Equal(t, msgReportSaved, replies[0].Text)
	assert.Equal(t, msgChooseCategory, replies[1].Text, "flow loops back to the category menu")
}

func TestScenarioWithPhoto(t *testing.T) {
	e, sessions, store, _ := newTestEngine()

	send(t, e, Text{Value: "Full bin"})
	send(t, e, Text{Value: "overflowing bin on Main St"})
	send(t, e, Photo{Ref: "ref123"})
	assert.Equal(t, AwaitingLocation, stageOf(t, sessions))
	send(t, e, NewLocation(14.70, -17.45))

	saved := store.saved()
	require.Len(t, saved, 1)
	require.NotNil(t, saved[0].PhotoRef)
	assert.Equal(t, "ref123", *saved[0].PhotoRef)
}

func TestMalformedLocationDoesNotFinalize(t *testing.T) {
	e, sessions, store, _ := newTestEngine()

	send(t, e, Text{Value: "Full bin"})
	send(t, e, Text{Value: "overflowing bin on Main St"})

	replies := send(t, e, Location{Latitude: coord(14.70)})
	assert.Empty(t, store.saved())
	assert.Equal(t, AwaitingMediaOrLocation, stageOf(t, sessions))
	assert.Equal(t, msgLocationInvalid, replies[0].Text)
	assert.True(t, replies[0].RequestLocation)

	send(t, e, Photo{Ref: "ref123"})
	for _, bad := range []Payload{
		Location{Longitude: coord(-17.45)},
		Location{},
		Location{Latitude: coord(math.NaN()), Longitude: coord(-17.45)},
		Location{Latitude: coord(140), Longitude: coord(-17.45)},
		Text{Value: "near the market"},
		Text{Value: "14.70"},
	} {
		send(t, e, bad)
		assert.Equal(t, AwaitingLocation, stageOf(t, sessions), "payload %#v", bad)
	}
	assert.Empty(t, store.saved())

	send(t, e, NewLocation(14.70, -17.45))
	assert.Len(t, store.saved(), 1)
}

func TestTypedCoordinatesFinalize(t *testing.T) {
	e, _, store, _ := newTestEngine()

	send(t, e, Text{Value: "Dumping"})
	send(t, e, Text{Value: "rubble dumped on the beach"})
	send(t, e, Text{Value: "14.6937, -17.4441"})

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.InDelta(t, 14.6937, saved[0].Latitude, 1e-9)
	assert.InDelta(t, -17.4441, saved[0].Longitude, 1e-9)
}

func TestUnrecognizedCategoryRepromptsWithoutStateChange(t *testing.T) {
	e, sessions, _, _ := newTestEngine()

	first := send(t, e, Text{Value: "hello"})
	second := send(t, e, Text{Value: "full bin"})

	sess, ok := sessions.Peek(identity)
	require.True(t, ok)
	assert.Equal(t, AwaitingCategory, sess.Stage)
	assert.Empty(t, sess.Category)
	assert.Equal(t, first, second, "the same prompt is re-issued")
	assert.Equal(t, msgCategoryNotFound, first[0].Text)
	assert.Len(t, first[0].Options, len(models.Categories))
}

func TestCategoryMenuCoversEveryCategory(t *testing.T) {
	menu := categoryMenu(msgChooseCategory)
	require.Len(t, menu.Options, len(models.Categories))
	for i, name := range models.Categories {
		got, ok := MatchCategory(Button{ID: menu.Options[i].ID})
		require.True(t, ok, "category %q has no menu entry", name)
		assert.Equal(t, name, got)
	}
}

func TestCategoryMatchesLabelNameAndButton(t *testing.T) {
	tests := []struct {
		payload Payload
		want    string
	}{
		{Text{Value: "Dumping"}, models.CategoryDumping},
		{Text{Value: "🗑 Full bin"}, models.CategoryFullBin},
		{Text{Value: "  Other "}, models.CategoryOther},
		{Button{ID: "category:full_bin"}, models.CategoryFullBin},
	}
	for _, tt := range tests {
		got, ok := MatchCategory(tt.payload)
		assert.True(t, ok, "payload %#v", tt.payload)
		assert.Equal(t, tt.want, got)
	}

	_, ok := MatchCategory(Button{ID: "category:unknown"})
	assert.False(t, ok)
	_, ok = MatchCategory(Photo{Ref: "x"})
	assert.False(t, ok)
}

func TestStageOnlyMovesForward(t *testing.T) {
	e, sessions, _, _ := newTestEngine()

	inputs := []Payload{
		Photo{Ref: "early"},
		Text{Value: "Other"},
		Photo{Ref: "still early"},
		Button{ID: "category:dumping"},
		Text{Value: "burning waste behind the school"},
		Text{Value: "what now?"},
		Button{ID: optAttachPhoto.ID},
		Text{Value: "not a photo"},
		Photo{Ref: "p1"},
		Photo{Ref: "p2"},
		Button{ID: optAttachPhoto.ID},
	}

	last := AwaitingCategory
	for _, p := range inputs {
		send(t, e, p)
		cur := stageOf(t, sessions)
		assert.GreaterOrEqual(t, cur, last, "payload %#v moved %s -> %s", p, last, cur)
		last = cur
	}

	sess, _ := sessions.Peek(identity)
	assert.Equal(t, models.CategoryOther, sess.Category, "category is immutable once chosen")
	assert.Equal(t, "p1", sess.PhotoRef, "photo is set at most once")
}

func TestAttachAndSkipPhoto(t *testing.T) {
	e, sessions, store, _ := newTestEngine()

	send(t, e, Button{ID: "category:other"})
	send(t, e, Text{Value: "dead animal in the canal"})
	send(t, e, Text{Value: optAttachPhoto.Label})
	assert.Equal(t, AwaitingPhoto, stageOf(t, sessions))

	replies := send(t, e, NewLocation(1, 1))
	assert.Equal(t, AwaitingPhoto, stageOf(t, sessions))
	assert.Equal(t, msgPhotoRequired, replies[0].Text)

	send(t, e, Button{ID: optSkipPhoto.ID})
	assert.Equal(t, AwaitingLocation, stageOf(t, sessions))

	send(t, e, NewLocation(14.7, -17.4))
	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Nil(t, saved[0].PhotoRef)
}

func TestNextEventAfterFinalizeStartsFresh(t *testing.T) {
	e, sessions, store, _ := newTestEngine()

	send(t, e, Text{Value: "Full bin"})
	send(t, e, Text{Value: "bin overflowing"})
	send(t, e, NewLocation(14.70, -17.45))

	send(t, e, Text{Value: "hello again"})
	sess, ok := sessions.Peek(identity)
	require.True(t, ok)
	assert.Equal(t, AwaitingCategory, sess.Stage)
	assert.Empty(t, sess.Description)

	send(t, e, Text{Value: "Dumping"})
	send(t, e, Text{Value: "second report"})
	send(t, e, NewLocation(14.71, -17.46))
	assert.Len(t, store.saved(), 2, "each completed flow produces one record")
}

func TestPersistenceFailureKeepsSessionAndInformsUser(t *testing.T) {
	e, sessions, store, notifier := newTestEngine()
	store.err = errors.New("connection refused")

	send(t, e, Text{Value: "Full bin"})
	send(t, e, Text{Value: "bin overflowing"})
	send(t, e, Photo{Ref: "ref123"})

	replies, err := e.Handle(context.Background(), event(NewLocation(14.70, -17.45)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReportNotSaved)
	require.Len(t, replies, 1)
	assert.Equal(t, msgReportNotSaved, replies[0].Text)
	assert.Empty(t, notifier.notified)

	sess, ok := sessions.Peek(identity)
	require.True(t, ok, "the draft survives so the user can retry")
	assert.Equal(t, AwaitingLocation, sess.Stage)
	assert.Equal(t, "ref123", sess.PhotoRef)

	store.err = nil
	send(t, e, NewLocation(14.70, -17.45))
	assert.Len(t, store.saved(), 1)
}

func TestNotifierFailureDoesNotAffectSavedReport(t *testing.T) {
	e, sessions, store, notifier := newTestEngine()
	notifier.err = errors.New("telegram unavailable")

	send(t, e, Text{Value: "Dumping"})
	send(t, e, Text{Value: "pile of tyres"})
	replies := send(t, e, NewLocation(14.70, -17.45))

	assert.Len(t, store.saved(), 1)
	assert.Len(t, notifier.notified, 1)
	assert.Equal(t, msgReportSaved, replies[0].Text)
	_, exists := sessions.Peek(identity)
	assert.False(t, exists)
}

func TestStartAndCancelCommands(t *testing.T) {
	e, sessions, _, _ := newTestEngine()

	send(t, e, Text{Value: "Dumping"})
	send(t, e, Text{Value: "pile of tyres"})
	assert.Equal(t, AwaitingMediaOrLocation, stageOf(t, sessions))

	replies := send(t, e, Text{Value: "/start"})
	assert.Equal(t, AwaitingCategory, stageOf(t, sessions))
	assert.Equal(t, msgChooseCategory, replies[0].Text)

	send(t, e, Text{Value: "Dumping"})
	send(t, e, Text{Value: "/cancel@SonagedBot"})
	_, exists := sessions.Peek(identity)
	assert.False(t, exists)
}

func TestDescriptionRejectsNonText(t *testing.T) {
	e, sessions, _, _ := newTestEngine()

	send(t, e, Text{Value: "Dumping"})
	for _, p := range []Payload{Photo{Ref: "x"}, NewLocation(1, 1), Text{Value: "   "}, Button{ID: "category:other"}} {
		replies := send(t, e, p)
		assert.Equal(t, msgDescriptionRequired, replies[0].Text)
		assert.Equal(t, AwaitingDescription, stageOf(t, sessions))
	}
}

func TestReporterNameFallsBackToIdentity(t *testing.T) {
	e, _, store, _ := newTestEngine()
	ctx := context.Background()

	for _, p := range []Payload{Text{Value: "Dumping"}, Text{Value: "tyres"}, NewLocation(1, 2)} {
		_, err := e.Handle(ctx, Inbound{Identity: "whatsapp:221770000000", Channel: models.ChannelWhatsApp, Payload: p})
		require.NoError(t, err)
	}

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "whatsapp:221770000000", saved[0].ReporterName)
}

func TestHandleRejectsIncompleteEvents(t *testing.T) {
	e, _, _, _ := newTestEngine()

	_, err := e.Handle(context.Background(), Inbound{Payload: Text{Value: "hi"}})
	assert.Error(t, err)
	_, err = e.Handle(context.Background(), Inbound{Identity: identity})
	assert.Error(t, err)
}

func TestConcurrentEventsForOneIdentityFinalizeOnce(t *testing.T) {
	e, _, store, _ := newTestEngine()

	send(t, e, Text{Value: "Full bin"})
	send(t, e, Text{Value: "bin overflowing"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Handle(context.Background(), event(NewLocation(14.70, -17.45)))
		}()
	}
	wg.Wait()

	// The first location finalizes; the rest land on fresh sessions at the category stage.
	assert.Len(t, store.saved(), 1)
}
