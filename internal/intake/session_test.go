package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedStore(ttl time.Duration) (*SessionStore, *clock) {
	c := &clock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	s := NewSessionStore(ttl)
	s.now = c.Now
	return s, c
}

func TestGetOrCreateReturnsFreshSession(t *testing.T) {
	s, c := newClockedStore(0)

	sess := s.GetOrCreate("telegram:1")
	assert.Equal(t, "telegram:1", sess.Identity)
	assert.Equal(t, AwaitingCategory, sess.Stage)
	assert.Equal(t, c.Now(), sess.StartedAt)
	assert.Equal(t, 1, s.Len())

	sess.Stage = AwaitingDescription
	sess.Category = "Dumping"
	s.Update(sess)

	again := s.GetOrCreate("telegram:1")
	assert.Equal(t, AwaitingDescription, again.Stage)
	assert.Equal(t, "Dumping", again.Category)
}

func TestGetOrCreateReturnsCopies(t *testing.T) {
	s, _ := newClockedStore(0)

	sess := s.GetOrCreate("telegram:1")
	sess.Stage = AwaitingLocation

	stored, ok := s.Peek("telegram:1")
	require.True(t, ok)
	assert.Equal(t, AwaitingCategory, stored.Stage, "mutating a copy does not touch the store")
}

func TestRemove(t *testing.T) {
	s, _ := newClockedStore(0)

	s.GetOrCreate("telegram:1")
	s.GetOrCreate("telegram:2")
	s.Remove("telegram:1")
	s.Remove("telegram:unknown")

	_, ok := s.Peek("telegram:1")
	assert.False(t, ok)
	_, ok = s.Peek("telegram:2")
	assert.True(t, ok)
}

func TestSweepRemovesOnlyIdleSessions(t *testing.T) {
	s, c := newClockedStore(30 * time.Minute)

	s.GetOrCreate("idle")
	c.Advance(20 * time.Minute)
	active := s.GetOrCreate("active")
	c.Advance(15 * time.Minute)
	s.Update(active)

	assert.Equal(t, 1, s.Sweep())
	_, ok := s.Peek("idle")
	assert.False(t, ok)
	_, ok = s.Peek("active")
	assert.True(t, ok)
}

func TestSweepSkipsLockedIdentities(t *testing.T) {
	s, c := newClockedStore(time.Minute)

	s.GetOrCreate("busy")
	c.Advance(time.Hour)

	release := s.Acquire("busy")
	assert.Zero(t, s.Sweep())
	release()
	assert.Equal(t, 1, s.Sweep())
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	s, c := newClockedStore(0)

	s.GetOrCreate("old")
	c.Advance(365 * 24 * time.Hour)

	assert.Zero(t, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestExpiredSessionRestartsOnNextEvent(t *testing.T) {
	s, c := newClockedStore(10 * time.Minute)

	sess := s.GetOrCreate("telegram:1")
	sess.Stage = AwaitingLocation
	s.Update(sess)

	c.Advance(11 * time.Minute)
	fresh := s.GetOrCreate("telegram:1")
	assert.Equal(t, AwaitingCategory, fresh.Stage)
}

func TestAcquireSerializesPerIdentity(t *testing.T) {
	s := NewSessionStore(0)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := s.Acquire("telegram:1")
			defer release()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	s.mu.Lock()
	assert.Empty(t, s.locks, "unused identity locks are dropped")
	s.mu.Unlock()
}

func TestAcquireDoesNotBlockOtherIdentities(t *testing.T) {
	s := NewSessionStore(0)

	release := s.Acquire("telegram:1")
	defer release()

	done := make(chan struct{})
	go func() {
		r := s.Acquire("telegram:2")
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on telegram:1 blocked telegram:2")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := NewSessionStore(0)

	release := s.Acquire("telegram:1")
	release()
	release()

	again := s.Acquire("telegram:1")
	again()
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	s, c := newClockedStore(time.Minute)
	s.GetOrCreate("old")
	c.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "AWAITING_MEDIA_OR_LOCATION", AwaitingMediaOrLocation.String())
	assert.Equal(t, "UNKNOWN", Stage(99).String())
}
