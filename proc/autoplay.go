package proc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

const (
	// HealthyQueueDepth is the queue length at which autoplay leaves the queue alone.
	HealthyQueueDepth = 3

	candidateOverRequest   = 3
	fallbackEnqueueLimit   = 3
	fallbackLargeHistory   = 100
	fallbackExtraPrune     = 0.3
	fallbackEmergencyPrune = 0.25
)

// Outcome describes what a single finished-track cycle did.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNoAction  Outcome = "no_action"
	OutcomeEnqueued  Outcome = "enqueued"
	OutcomeMissed    Outcome = "missed"
	OutcomeRecovered Outcome = "recovered"
	OutcomeDisabled  Outcome = "disabled"
)

// Suggester produces candidate tracks for the controller.
type Suggester interface {
	GetSuggestions(ctx context.Context, req SuggestionRequest) []sys.Track
	GlobalSuggestions(ctx context.Context, limit int) []sys.Track
}

// AutoplayDeps are the collaborators shared by every guild's controller.
type AutoplayDeps struct {
	Players   Players
	Search    SearchProvider
	Suggester Suggester
	Notifier  Notifier
	BotID     snowflake.ID
	Config    sys.AutoplayConfig
	Now       func() time.Time
}

// AutoplayStatus is a point-in-time view of a controller.
type AutoplayStatus struct {
	Enabled             bool
	Working             bool
	OwnerID             snowflake.ID
	HistorySize         int
	ConsecutiveFailures int
	FallbackAttempts    int
	LastSuccessAt       time.Time
}

// Autoplay keeps one guild's queue topped up with recommendations.
type Autoplay struct {
	guildID snowflake.ID
	deps    AutoplayDeps
	history *PlayHistory

	processing atomic.Bool

	mu                  sync.Mutex
	enabled             bool
	ownerID             snowflake.ID
	lastProcessedURI    string
	consecutiveFailures int
	fallbackAttempts    int
	lastSuccessAt       time.Time
	noticeSent          bool
}

func NewAutoplay(guildID snowflake.ID, deps AutoplayDeps) *Autoplay {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config == (sys.AutoplayConfig{}) {
		deps.Config = sys.DefaultAutoplayConfig()
	}
	return &Autoplay{
		guildID: guildID,
		deps:    deps,
		history: NewPlayHistory(deps.Config.MaxHistorySize, deps.Now),
	}
}

func (a *Autoplay) GuildID() snowflake.ID { return a.guildID }

func (a *Autoplay) History() *PlayHistory { return a.history }

func (a *Autoplay) Enable(owner snowflake.ID) {
	a.mu.Lock()
	a.enabled = true
	a.ownerID = owner
	a.fallbackAttempts = 0
	a.consecutiveFailures = 0
	a.lastSuccessAt = a.deps.Now()
	a.noticeSent = false
	a.mu.Unlock()

	sys.LogAutoplay(sys.MsgAutoplayEnabled, a.guildID.String(), owner.String())
}

// Disable stops background enqueues. History is kept.
func (a *Autoplay) Disable() {
	a.mu.Lock()
	a.disableLocked()
	a.mu.Unlock()

	sys.LogAutoplay(sys.MsgAutoplayDisabled, a.guildID.String())
}

func (a *Autoplay) disableLocked() {
	a.enabled = false
	a.consecutiveFailures = 0
}

func (a *Autoplay) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// IsEffectivelyWorking reports whether autoplay is on and has recently succeeded.
func (a *Autoplay) IsEffectivelyWorking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.workingLocked()
}

func (a *Autoplay) workingLocked() bool {
	return a.enabled &&
		a.deps.Now().Sub(a.lastSuccessAt) < a.deps.Config.MaxInactiveTime &&
		a.consecutiveFailures < a.deps.Config.MaxConsecutiveFailures
}

func (a *Autoplay) Status() AutoplayStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AutoplayStatus{
		Enabled:             a.enabled,
		Working:             a.workingLocked(),
		OwnerID:             a.ownerID,
		HistorySize:         a.history.Len(),
		ConsecutiveFailures: a.consecutiveFailures,
		FallbackAttempts:    a.fallbackAttempts,
		LastSuccessAt:       a.lastSuccessAt,
	}
}

// ClearHistory forgets every played track and resets the escalation counters.
func (a *Autoplay) ClearHistory() int {
	n := a.history.Clear()
	a.mu.Lock()
	a.consecutiveFailures = 0
	a.fallbackAttempts = 0
	a.mu.Unlock()
	return n
}

func (a *Autoplay) PruneHistory(olderThan time.Duration) int {
	return a.history.PruneOlderThan(olderThan)
}

// ProcessFinishedTrack runs one autoplay cycle for a track that just ended.
// Concurrent calls for the same guild are dropped, not queued.
func (a *Autoplay) ProcessFinishedTrack(ctx context.Context, t sys.Track) (outcome Outcome) {
	if !t.Valid() {
		return OutcomeSkipped
	}
	if !a.processing.CompareAndSwap(false, true) {
		return OutcomeSkipped
	}
	defer a.processing.Store(false)

	defer func() {
		if r := recover(); r != nil {
			sys.LogAutoplayWarn(sys.MsgAutoplayCyclePanic, a.guildID.String(), r)
			outcome = OutcomeSkipped
		}
		sys.AutoplayCyclesTotal.WithLabelValues(string(outcome)).Inc()
	}()

	key := t.Key()
	a.mu.Lock()
	if !a.enabled || key == a.lastProcessedURI {
		a.mu.Unlock()
		return OutcomeSkipped
	}
	a.lastProcessedURI = key
	seedUser := a.ownerID
	a.mu.Unlock()

	a.history.Add(t)

	player, ok := a.deps.Players.Player(a.guildID)
	if !ok {
		return OutcomeNoAction
	}
	if depth := player.QueueSize(); depth >= HealthyQueueDepth {
		sys.LogDebug(sys.MsgAutoplayQueueHealthy, a.guildID.String(), depth)
		return OutcomeNoAction
	}

	if seedUser == 0 {
		seedUser = t.RequesterID
	}
	if seedUser == 0 {
		seedUser = a.deps.BotID
	}

	cfg := a.deps.Config
	sys.LogAutoplay(sys.MsgAutoplayRequesting, cfg.RecommendationCount*candidateOverRequest, a.guildID.String(), t.Author, t.Title)
	candidates := a.deps.Suggester.GetSuggestions(ctx, SuggestionRequest{
		UserID:       seedUser,
		GuildID:      a.guildID,
		Seed:         t,
		Limit:        cfg.RecommendationCount * candidateOverRequest,
		AllowRelated: true,
	})

	if n := a.enqueueCandidates(ctx, player, candidates, cfg.RecommendationCount); n > 0 {
		a.recordSuccess(player)
		sys.LogAutoplay(sys.MsgAutoplayEnqueued, n, a.guildID.String())
		return OutcomeEnqueued
	}

	a.mu.Lock()
	a.consecutiveFailures++
	failures := a.consecutiveFailures
	if failures >= cfg.MaxConsecutiveFailures {
		notify := !a.noticeSent
		a.noticeSent = true
		a.disableLocked()
		a.mu.Unlock()

		sys.LogAutoplayWarn(sys.MsgAutoplayBreakerTripped, a.guildID.String(), failures)
		if notify && a.deps.Notifier != nil {
			a.deps.Notifier.NotifyGuild(ctx, a.guildID, sys.MsgAutoplayNoticeDisabled)
		}
		return OutcomeDisabled
	}
	a.mu.Unlock()

	sys.LogAutoplayWarn(sys.MsgAutoplayMiss, a.guildID.String(), failures, cfg.MaxConsecutiveFailures)
	return a.escalate(ctx, player)
}

// escalate counts a miss toward the soft fallback and, once it is due, prunes the
// history and falls back to global suggestions. It never disables autoplay.
func (a *Autoplay) escalate(ctx context.Context, player Player) Outcome {
	cfg := a.deps.Config

	a.mu.Lock()
	a.fallbackAttempts++
	attempts := a.fallbackAttempts
	if attempts < cfg.MaxFallbackAttempts {
		a.mu.Unlock()
		sys.LogDebug(sys.MsgAutoplayFallbackWait, attempts, cfg.MaxFallbackAttempts, a.guildID.String())
		return OutcomeMissed
	}
	a.fallbackAttempts = 0
	a.mu.Unlock()

	pruned := a.history.PruneOlderThan(cfg.HistoryRetention)
	if a.history.Len() > fallbackLargeHistory {
		pruned += a.history.EmergencyPrune(fallbackExtraPrune)
	}
	sys.LogAutoplay(sys.MsgAutoplayFallbackPrune, pruned, a.guildID.String(), a.history.Len())

	global := a.deps.Suggester.GlobalSuggestions(ctx, cfg.RecommendationCount*candidateOverRequest)
	if n := a.enqueueCandidates(ctx, player, global, fallbackEnqueueLimit); n > 0 {
		a.recordSuccess(player)
		sys.LogAutoplay(sys.MsgAutoplayFallbackGlobal, n, a.guildID.String())
		return OutcomeRecovered
	}

	removed := a.history.EmergencyPrune(fallbackEmergencyPrune)
	sys.LogAutoplayWarn(sys.MsgAutoplayEmergencyPrune, removed, a.guildID.String())
	return OutcomeMissed
}

// enqueueCandidates resolves unplayed candidates until limit tracks were queued.
func (a *Autoplay) enqueueCandidates(ctx context.Context, player Player, candidates []sys.Track, limit int) int {
	enqueued := 0
	for _, c := range candidates {
		if enqueued >= limit || ctx.Err() != nil {
			break
		}
		if !c.Valid() || a.history.Has(c.Key()) {
			continue
		}

		resolved, ok := a.resolve(ctx, c)
		if !ok {
			continue
		}
		if resolved.Key() != c.Key() && a.history.Has(resolved.Key()) {
			continue
		}
		resolved.RequesterID = a.deps.BotID

		if err := player.Enqueue(resolved); err != nil {
			sys.LogAutoplayWarn(sys.MsgAutoplayEnqueueFail, resolved.URI, err)
			continue
		}
		a.history.Add(c)
		a.history.Add(resolved)
		enqueued++
	}
	sys.AutoplayTracksEnqueuedTotal.Add(float64(enqueued))
	return enqueued
}

// resolve looks a candidate up by exact URI first, then by "author - title".
func (a *Autoplay) resolve(ctx context.Context, c sys.Track) (sys.Track, bool) {
	if t, ok := a.searchFirst(ctx, c.Key()); ok {
		return t, true
	}
	if t, ok := a.searchFirst(ctx, c.Query()); ok {
		return t, true
	}
	return sys.Track{}, false
}

func (a *Autoplay) searchFirst(ctx context.Context, query string) (sys.Track, bool) {
	if query == "" {
		return sys.Track{}, false
	}
	res, err := a.deps.Search.SearchByURIOrText(ctx, query)
	if err != nil {
		sys.LogDebug(sys.MsgAutoplayResolveFail, query, err)
		return sys.Track{}, false
	}
	switch res.Status {
	case SearchTrack, SearchSearch, SearchPlaylist:
		for _, t := range res.Tracks {
			if t.Valid() {
				return t, true
			}
		}
	}
	return sys.Track{}, false
}

func (a *Autoplay) recordSuccess(player Player) {
	a.mu.Lock()
	a.consecutiveFailures = 0
	a.fallbackAttempts = 0
	a.lastSuccessAt = a.deps.Now()
	a.mu.Unlock()

	if !player.IsPlaying() {
		if err := player.StartPlayback(); err != nil {
			sys.LogAutoplayWarn(sys.MsgAutoplayStartFail, a.guildID.String(), err)
		}
	}
}
