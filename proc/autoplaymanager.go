package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// AutoplayManager owns the per-guild controllers. There is never more than one per guild.
type AutoplayManager struct {
	ctx  context.Context
	deps AutoplayDeps

	mu       sync.Mutex
	sessions map[snowflake.ID]*Autoplay
}

func NewAutoplayManager(ctx context.Context, deps AutoplayDeps) *AutoplayManager {
	if deps.Config == (sys.AutoplayConfig{}) {
		deps.Config = sys.DefaultAutoplayConfig()
	}
	return &AutoplayManager{
		ctx:      ctx,
		deps:     deps,
		sessions: make(map[snowflake.ID]*Autoplay),
	}
}

// SetBotID tags tracks enqueued by controllers created from now on.
func (m *AutoplayManager) SetBotID(id snowflake.ID) {
	m.mu.Lock()
	m.deps.BotID = id
	m.mu.Unlock()
}

func (m *AutoplayManager) GetOrCreate(guildID snowflake.ID) *Autoplay {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.sessions[guildID]; ok {
		return a
	}
	a := NewAutoplay(guildID, m.deps)
	m.sessions[guildID] = a
	sys.AutoplaySessions.Set(float64(len(m.sessions)))
	return a
}

func (m *AutoplayManager) Get(guildID snowflake.ID) (*Autoplay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.sessions[guildID]
	return a, ok
}

// Remove disables the guild's controller and drops it.
func (m *AutoplayManager) Remove(guildID snowflake.ID) {
	m.mu.Lock()
	a, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	sys.AutoplaySessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if ok {
		a.Disable()
		sys.LogAutoplay(sys.MsgAutoplayRemoved, guildID.String())
	}
}

func (m *AutoplayManager) Config() sys.AutoplayConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deps.Config
}

func (m *AutoplayManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EnabledCount is the number of guilds with autoplay switched on.
func (m *AutoplayManager) EnabledCount() int {
	m.mu.Lock()
	sessions := make([]*Autoplay, 0, len(m.sessions))
	for _, a := range m.sessions {
		sessions = append(sessions, a)
	}
	m.mu.Unlock()

	n := 0
	for _, a := range sessions {
		if a.IsEnabled() {
			n++
		}
	}
	return n
}

// Attach routes playback events to the controllers. Finished tracks only reach
// guilds that already have a controller.
func (m *AutoplayManager) Attach(events TrackEvents) {
	events.OnTrackFinished(func(guildID snowflake.ID, t sys.Track) {
		if a, ok := m.Get(guildID); ok {
			a.ProcessFinishedTrack(m.ctx, t)
		}
	})
	events.OnPlayerDestroyed(m.Remove)
}

// PruneAll ages out history entries in every guild and returns the total removed.
func (m *AutoplayManager) PruneAll(olderThan time.Duration) int {
	m.mu.Lock()
	sessions := make([]*Autoplay, 0, len(m.sessions))
	for _, a := range m.sessions {
		sessions = append(sessions, a)
	}
	m.mu.Unlock()

	total := 0
	for _, a := range sessions {
		total += a.PruneHistory(olderThan)
	}
	return total
}

// CleanupDaemon prunes every guild's history once per interval.
func (m *AutoplayManager) CleanupDaemon(interval time.Duration) func(ctx context.Context) (bool, func(), func()) {
	return func(ctx context.Context) (bool, func(), func()) {
		ctx, cancel := context.WithCancel(ctx)
		run := func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed := m.PruneAll(m.Config().HistoryRetention)
					sys.LogAutoplay(sys.MsgAutoplayDailyCleanup, removed, m.Len())
				}
			}
		}
		return true, run, cancel
	}
}
