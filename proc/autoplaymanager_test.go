package proc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEvents captures the hooks a manager attaches.
type fakeEvents struct {
	finished  func(snowflake.ID, sys.Track)
	destroyed func(snowflake.ID)
}

func (e *fakeEvents) OnTrackFinished(h func(snowflake.ID, sys.Track)) { e.finished = h }
func (e *fakeEvents) OnPlayerDestroyed(h func(snowflake.ID))          { e.destroyed = h }

func newTestManager(players fakePlayers, suggester *fakeSuggester) *AutoplayManager {
	return NewAutoplayManager(context.Background(), AutoplayDeps{
		Players:   players,
		Search:    &fakeSearch{},
		Suggester: suggester,
		Notifier:  &fakeNotifier{},
	})
}

func TestAutoplayManager_GetOrCreateIsSingletonPerGuild(t *testing.T) {
	m := newTestManager(fakePlayers{}, &fakeSuggester{})

	var wg sync.WaitGroup
	results := make([]*Autoplay, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate(testGuild)
		}(i)
	}
	wg.Wait()

	for _, a := range results {
		assert.Same(t, results[0], a)
	}
	assert.Equal(t, 1, m.Len())

	other := m.GetOrCreate(testGuild + 1)
	assert.NotSame(t, results[0], other)
	assert.Equal(t, 2, m.Len())
}

func TestAutoplayManager_DefaultConfig(t *testing.T) {
	m := newTestManager(fakePlayers{}, &fakeSuggester{})
	assert.Equal(t, sys.DefaultAutoplayConfig(), m.Config())
}

func TestAutoplayManager_SetBotIDAppliesToNewControllers(t *testing.T) {
	m := newTestManager(fakePlayers{}, &fakeSuggester{})
	before := m.GetOrCreate(testGuild)

	m.SetBotID(testBot)
	after := m.GetOrCreate(testGuild + 1)

	assert.Zero(t, before.deps.BotID)
	assert.Equal(t, testBot, after.deps.BotID)
}

func TestAutoplayManager_RemoveDisables(t *testing.T) {
	m := newTestManager(fakePlayers{}, &fakeSuggester{})
	a := m.GetOrCreate(testGuild)
	a.Enable(testUser)

	m.Remove(testGuild)
	assert.False(t, a.IsEnabled())
	_, ok := m.Get(testGuild)
	assert.False(t, ok)

	// Removing an unknown guild is harmless.
	m.Remove(testGuild + 99)
	assert.Equal(t, 0, m.Len())
}

func TestAutoplayManager_AttachRoutesEvents(t *testing.T) {
	player := &fakePlayer{}
	suggester := &fakeSuggester{suggestions: [][]sys.Track{tracksFrom("cand", 1, 2)}}
	m := newTestManager(fakePlayers{testGuild: player}, suggester)
	events := &fakeEvents{}
	m.Attach(events)
	require.NotNil(t, events.finished)
	require.NotNil(t, events.destroyed)

	// No controller yet, so nothing happens.
	events.finished(testGuild, track(1))
	assert.Empty(t, suggester.Requests())

	m.GetOrCreate(testGuild).Enable(testUser)
	events.finished(testGuild, track(2))
	assert.Len(t, suggester.Requests(), 1)
	assert.Len(t, player.Enqueued(), 2)

	events.destroyed(testGuild)
	assert.Equal(t, 0, m.Len())
}

func TestAutoplayManager_PruneAll(t *testing.T) {
	clock := newFakeClock()
	m := NewAutoplayManager(context.Background(), AutoplayDeps{Now: clock.Now})

	a := m.GetOrCreate(testGuild)
	b := m.GetOrCreate(testGuild + 1)
	a.History().Add(track(1))
	b.History().Add(track(2))
	b.History().Add(track(3))
	clock.Advance(48 * time.Hour)
	b.History().Add(track(4))

	assert.Equal(t, 3, m.PruneAll(24*time.Hour))
	assert.Equal(t, 0, a.History().Len())
	assert.Equal(t, 1, b.History().Len())
}

func TestAutoplayManager_CleanupDaemonStopsOnShutdown(t *testing.T) {
	m := newTestManager(fakePlayers{}, &fakeSuggester{})
	start, run, shutdown := m.CleanupDaemon(time.Millisecond)(context.Background())
	require.True(t, start)

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup daemon did not stop")
	}
}
