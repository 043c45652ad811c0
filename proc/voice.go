package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
	"github.com/lrstanley/go-ytdlp"
)

const voiceStatusLimit = 128

var (
	VoiceManager *VoiceSystem
	OnceVoice    sync.Once

	ErrNotConnected = errors.New("not connected to voice")
	ErrInvalidTrack = errors.New("track is missing uri, title or author")
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)

	sys.RegisterDaemon(sys.LogVoice, func(ctx context.Context) (bool, func(), func()) {
		return true, func() {}, func() {
			sys.LogVoice(sys.MsgVoiceShutdown)
			GetVoiceManager().Shutdown(context.Background())
		}
	})
	sys.RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		GetVoiceManager().onVoiceStateUpdate(event)
	})
}

// VoiceSystem manages all voice sessions across guilds and reports playback
// events to whoever subscribed.
type VoiceSystem struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*VoiceSession
	history  sys.HistoryWriter

	hooksMu   sync.RWMutex
	finished  []func(guildID snowflake.ID, t sys.Track)
	destroyed []func(guildID snowflake.ID)
}

func NewVoiceSystem() *VoiceSystem {
	return &VoiceSystem{sessions: make(map[snowflake.ID]*VoiceSession)}
}

// GetVoiceManager returns the singleton VoiceSystem instance
func GetVoiceManager() *VoiceSystem {
	OnceVoice.Do(func() {
		VoiceManager = NewVoiceSystem()
	})
	return VoiceManager
}

// SetHistoryWriter makes every started track count as a play.
func (vs *VoiceSystem) SetHistoryWriter(w sys.HistoryWriter) {
	vs.mu.Lock()
	vs.history = w
	vs.mu.Unlock()
}

func (vs *VoiceSystem) OnTrackFinished(handler func(guildID snowflake.ID, t sys.Track)) {
	vs.hooksMu.Lock()
	vs.finished = append(vs.finished, handler)
	vs.hooksMu.Unlock()
}

func (vs *VoiceSystem) OnPlayerDestroyed(handler func(guildID snowflake.ID)) {
	vs.hooksMu.Lock()
	vs.destroyed = append(vs.destroyed, handler)
	vs.hooksMu.Unlock()
}

func (vs *VoiceSystem) emitFinished(guildID snowflake.ID, t sys.Track) {
	vs.hooksMu.RLock()
	hooks := append([]func(snowflake.ID, sys.Track){}, vs.finished...)
	vs.hooksMu.RUnlock()
	for _, h := range hooks {
		sys.SafeGo(func() { h(guildID, t) })
	}
}

func (vs *VoiceSystem) emitDestroyed(guildID snowflake.ID) {
	vs.hooksMu.RLock()
	hooks := append([]func(snowflake.ID){}, vs.destroyed...)
	vs.hooksMu.RUnlock()
	for _, h := range hooks {
		h(guildID)
	}
}

// Player returns the guild's session once it has joined a channel.
func (vs *VoiceSystem) Player(guildID snowflake.ID) (Player, bool) {
	s := vs.GetSession(guildID)
	if s == nil || !s.isJoined() {
		return nil, false
	}
	return s, true
}

// GetSession retrieves the voice session for a guild
func (vs *VoiceSystem) GetSession(guildID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.sessions[guildID]
}

func (vs *VoiceSystem) Len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.sessions)
}

// Prepare creates or retrieves a voice session for a guild
func (vs *VoiceSystem) Prepare(client *bot.Client, guildID, channelID, textChannelID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if sess, ok := vs.sessions[guildID]; ok {
		sess.channelMu.Lock()
		sess.TextChannelID = textChannelID
		currentChannelID := sess.ChannelID
		sess.channelMu.Unlock()
		if currentChannelID == channelID {
			return sess
		}
		clearVoiceStatus(client, currentChannelID)
		sess.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &VoiceSession{
		GuildID:       guildID,
		ChannelID:     channelID,
		TextChannelID: textChannelID,
		Conn:          client.VoiceManager.CreateConn(guildID),
		client:        client,
		system:        vs,
		cancelCtx:     ctx,
		cancelFunc:    cancel,
		statusChan:    make(chan string, 10),
	}
	sess.queueCond = sync.NewCond(&sess.queueMu)
	sess.goroutineWg.Add(1)
	go func() {
		defer sess.goroutineWg.Done()
		sess.statusManager()
	}()
	vs.sessions[guildID] = sess
	return sess
}

// Join connects the bot to a voice channel
func (vs *VoiceSystem) Join(ctx context.Context, client *bot.Client, guildID, channelID, textChannelID snowflake.ID) error {
	sys.LogVoice(sys.MsgVoiceJoining, channelID.String(), guildID.String())
	sess := vs.Prepare(client, guildID, channelID, textChannelID)
	if sess.isJoined() {
		return nil
	}
	if err := sess.Conn.Open(ctx, channelID, false, false); err != nil {
		sys.LogVoice(sys.MsgVoiceJoinFail, guildID.String(), err)
		clearVoiceStatus(client, channelID)
		sess.Conn.Close(ctx)
		vs.mu.Lock()
		if vs.sessions[guildID] == sess {
			delete(vs.sessions, guildID)
		}
		vs.mu.Unlock()
		sess.cancelFunc()
		return err
	}

	sess.queueMu.Lock()
	sess.joined = true
	sess.queueMu.Unlock()

	sess.goroutineWg.Add(1)
	go func() {
		defer sess.goroutineWg.Done()
		sess.processQueue()
	}()
	return nil
}

// Leave disconnects the bot from a voice channel and destroys the guild's player.
func (vs *VoiceSystem) Leave(ctx context.Context, guildID snowflake.ID) {
	vs.mu.Lock()
	sess, ok := vs.sessions[guildID]
	if !ok {
		vs.mu.Unlock()
		return
	}
	delete(vs.sessions, guildID)
	vs.mu.Unlock()

	sess.channelMu.RLock()
	channelID := sess.ChannelID
	sess.channelMu.RUnlock()
	clearVoiceStatus(sess.client, channelID)

	sess.Stop()
	if sess.Conn != nil {
		sess.Conn.Close(ctx)
	}
	vs.emitDestroyed(guildID)
}

// Shutdown gracefully stops all voice sessions and clears their status
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	vs.mu.Lock()
	ids := make([]snowflake.ID, 0, len(vs.sessions))
	for id := range vs.sessions {
		ids = append(ids, id)
	}
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vs.Leave(ctx, id)
		}()
	}
	wg.Wait()
}

// Play queues a resolved track in a joined session.
func (vs *VoiceSystem) Play(guildID snowflake.ID, t sys.Track, now bool) error {
	s := vs.GetSession(guildID)
	if s == nil {
		return ErrNotConnected
	}
	if now {
		return s.PlayNow(t)
	}
	return s.Enqueue(t)
}

// onVoiceStateUpdate follows the bot being moved or kicked from its channel.
func (vs *VoiceSystem) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != event.Client().ID() {
		return
	}
	guildID := event.VoiceState.GuildID
	s := vs.GetSession(guildID)
	if s == nil {
		return
	}

	if event.VoiceState.ChannelID == nil {
		sys.LogVoice(sys.MsgVoiceDisconnected, guildID.String())
		vs.Leave(context.Background(), guildID)
		return
	}

	s.channelMu.Lock()
	old := s.ChannelID
	moved := old != *event.VoiceState.ChannelID
	s.ChannelID = *event.VoiceState.ChannelID
	s.channelMu.Unlock()
	if !moved {
		return
	}
	if old != 0 {
		clearVoiceStatus(event.Client(), old)
	}
	s.statusMu.Lock()
	status := s.lastStatus
	s.statusMu.Unlock()
	s.setVoiceStatus(status)
}

func clearVoiceStatus(client *bot.Client, channelID snowflake.ID) {
	if client == nil || channelID == 0 {
		return
	}
	_ = client.Rest.Do(voiceStatusRoute(channelID), map[string]string{"status": ""}, nil)
}

func voiceStatusRoute(channelID snowflake.ID) *rest.CompiledEndpoint {
	return rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status").Compile(nil)
}

// VoiceSession is the player of one guild.
type VoiceSession struct {
	GuildID       snowflake.ID
	ChannelID     snowflake.ID
	TextChannelID snowflake.ID
	channelMu     sync.RWMutex
	Conn          voice.Conn
	client        *bot.Client
	system        *VoiceSystem

	queue        []sys.Track
	current      *sys.Track
	joined       bool
	queueMu      sync.Mutex
	queueCond    *sync.Cond
	streamCancel context.CancelFunc
	transcoder   *AstiavTranscoder

	cancelCtx  context.Context
	cancelFunc context.CancelFunc

	lastStatus  string
	statusMu    sync.Mutex
	statusChan  chan string
	goroutineWg sync.WaitGroup
}

func (s *VoiceSession) isJoined() bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.joined
}

func (s *VoiceSession) QueueSize() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

// Queue returns a copy of the upcoming tracks.
func (s *VoiceSession) Queue() []sys.Track {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return append([]sys.Track(nil), s.queue...)
}

// Current returns the track being streamed.
func (s *VoiceSession) Current() (sys.Track, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.current == nil {
		return sys.Track{}, false
	}
	return *s.current, true
}

func (s *VoiceSession) IsPlaying() bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.current != nil
}

func (s *VoiceSession) Enqueue(t sys.Track) error {
	if !t.Valid() {
		return ErrInvalidTrack
	}
	if s.cancelCtx.Err() != nil {
		return ErrNotConnected
	}
	s.queueMu.Lock()
	s.queue = append(s.queue, t)
	s.queueCond.Signal()
	s.queueMu.Unlock()
	sys.LogVoice(sys.MsgVoiceQueued, s.GuildID.String(), t.URI)
	return nil
}

// PlayNow puts t at the front of the queue and skips the current track.
func (s *VoiceSession) PlayNow(t sys.Track) error {
	if !t.Valid() {
		return ErrInvalidTrack
	}
	if s.cancelCtx.Err() != nil {
		return ErrNotConnected
	}
	s.queueMu.Lock()
	s.queue = append([]sys.Track{t}, s.queue...)
	s.queueCond.Signal()
	cancel := s.streamCancel
	s.queueMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// StartPlayback wakes the queue loop. Playback itself starts as soon as the
// queue is non-empty.
func (s *VoiceSession) StartPlayback() error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if !s.joined || s.cancelCtx.Err() != nil {
		return ErrNotConnected
	}
	if len(s.queue) == 0 && s.current == nil {
		return errors.New("queue is empty")
	}
	s.queueCond.Signal()
	return nil
}

// Skip ends the current track. The finished event still fires for it.
func (s *VoiceSession) Skip() bool {
	s.queueMu.Lock()
	cancel := s.streamCancel
	playing := s.current != nil
	s.queueMu.Unlock()
	if playing && cancel != nil {
		cancel()
	}
	return playing
}

// Stop stops playback and clears the queue
func (s *VoiceSession) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.queueMu.Lock()
	if s.streamCancel != nil {
		s.streamCancel()
	}
	s.queue = nil
	s.current = nil
	s.queueCond.Broadcast()
	s.queueMu.Unlock()

	if s.Conn != nil {
		s.setOpusFrameProviderSafe(nil)
		s.Conn.SetSpeaking(context.Background(), 0)
	}
}

// WaitForCleanup waits for all session goroutines to exit
func (s *VoiceSession) WaitForCleanup() {
	s.goroutineWg.Wait()
}

// Position reports how far into the current track the stream is.
func (s *VoiceSession) Position() (pos int64, ok bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.transcoder == nil {
		return 0, false
	}
	return s.transcoder.Position().Milliseconds(), true
}

func (s *VoiceSession) setVoiceStatus(status string) {
	select {
	case s.statusChan <- status:
	default:
	}
}

// statusManager coalesces status updates so bursts cost one REST call.
func (s *VoiceSession) statusManager() {
	var cur, next string
	hasNext := false
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	for {
		select {
		case <-s.cancelCtx.Done():
			return
		case n := <-s.statusChan:
			next = n
			hasNext = true
		drain:
			for {
				select {
				case n := <-s.statusChan:
					next = n
				default:
					break drain
				}
			}
			if next == cur {
				hasNext = false
				continue
			}
			t.Reset(500 * time.Millisecond)
		case <-t.C:
			if !hasNext {
				continue
			}
			target := truncateCenter(next, voiceStatusLimit)
			s.statusMu.Lock()
			if target != "" {
				s.lastStatus = target
			}
			s.statusMu.Unlock()

			s.channelMu.RLock()
			channelID := s.ChannelID
			s.channelMu.RUnlock()
			if err := s.client.Rest.Do(voiceStatusRoute(channelID), map[string]string{"status": target}, nil); err != nil {
				t.Reset(time.Second)
				continue
			}
			cur = next
			hasNext = false
		}
	}
}

func (s *VoiceSession) setOpusFrameProviderSafe(provider voice.OpusFrameProvider) {
	if s.Conn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice(sys.MsgVoiceStreamFail, "frame provider", r)
		}
	}()
	s.Conn.SetOpusFrameProvider(provider)
}

// processQueue plays queued tracks one after another until the session closes.
func (s *VoiceSession) processQueue() {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.cancelCtx.Done():
			s.queueMu.Lock()
			s.queueCond.Broadcast()
			s.queueMu.Unlock()
		case <-done:
		}
	}()

	for {
		s.queueMu.Lock()
		for len(s.queue) == 0 {
			if s.cancelCtx.Err() != nil {
				s.queueMu.Unlock()
				return
			}
			s.queueCond.Wait()
		}
		if s.cancelCtx.Err() != nil {
			s.queueMu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.current = &t
		s.queueMu.Unlock()

		s.recordPlay(t)
		sys.LogVoice(sys.MsgVoicePlaying, t.Title, t.Author, t.URI)
		s.setVoiceStatus(nowPlayingStatus(t))

		s.stream(t)

		s.setVoiceStatus("")
		s.queueMu.Lock()
		s.current = nil
		s.queueMu.Unlock()

		if s.cancelCtx.Err() != nil {
			return
		}
		s.system.emitFinished(s.GuildID, t)
	}
}

func (s *VoiceSession) recordPlay(t sys.Track) {
	sys.TracksPlayedTotal.Inc()

	s.system.mu.Lock()
	w := s.system.history
	s.system.mu.Unlock()
	if w == nil {
		return
	}
	user := t.RequesterID
	if user == s.client.ID() {
		user = 0
	}
	if err := w.RecordPlay(s.cancelCtx, s.GuildID, user, t); err != nil {
		sys.LogDatabase(sys.MsgDatabaseRecordFail, t.URI, err)
	}
}

// stream pipes yt-dlp output through the transcoder into the voice connection
// and returns once the track ended or was skipped.
func (s *VoiceSession) stream(t sys.Track) {
	ctx, cancel := context.WithCancel(s.cancelCtx)
	defer cancel()

	s.queueMu.Lock()
	s.streamCancel = cancel
	s.queueMu.Unlock()

	pr, pw := io.Pipe()
	go func() {
		err := ytdlpStream(ctx, t.URI, pw)
		if err != nil && ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoiceStreamFail, t.URI, err)
		}
		_ = pw.CloseWithError(err)
	}()

	p := NewStreamProvider(ctx)
	finished := make(chan struct{})
	p.OnFinish = func() { close(finished) }

	go func() {
		defer p.PushFrame(nil)
		defer pr.Close()
		tr := NewAstiavTranscoder()
		defer tr.Close()
		defer func() {
			s.queueMu.Lock()
			if s.transcoder == tr {
				s.transcoder = nil
			}
			s.queueMu.Unlock()
		}()

		if err := tr.OpenInput("", pr); err != nil {
			sys.LogVoice(sys.MsgVoiceTranscodeFail, "open", err)
			return
		}
		if err := tr.SetupDecoder(); err != nil {
			sys.LogVoice(sys.MsgVoiceTranscodeFail, "decoder", err)
			return
		}
		if err := tr.SetupEncoder(); err != nil {
			sys.LogVoice(sys.MsgVoiceTranscodeFail, "encoder", err)
			return
		}
		s.queueMu.Lock()
		s.transcoder = tr
		s.queueMu.Unlock()

		if err := tr.Transcode(ctx, p.PushFrame); err != nil && ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoiceTranscodeFail, "stream", err)
		}
	}()

	if s.Conn != nil {
		s.setOpusFrameProviderSafe(p)
		s.Conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)
	}

	msg := t.Title + " · " + t.Author
	select {
	case <-finished:
		sys.LogVoice(sys.MsgVoiceFinished, msg)
	case <-ctx.Done():
		sys.LogVoice(sys.MsgVoiceStopped, msg)
	}

	if s.Conn != nil {
		s.setOpusFrameProviderSafe(nil)
		s.Conn.SetSpeaking(context.Background(), 0)
	}
}

func nowPlayingStatus(t sys.Track) string {
	suffix := ""
	if t.Author != "" {
		suffix = " · " + t.Author
	}
	return truncateWithPreserve(t.Title, voiceStatusLimit, "🎶 ", suffix)
}

func truncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

func truncateWithPreserve(text string, maxLen int, prefix, suffix string) string {
	fixed := len([]rune(prefix)) + len([]rune(suffix))
	if fixed >= maxLen-10 {
		return truncateCenter(prefix+text+suffix, maxLen)
	}
	return prefix + truncateCenter(text, maxLen-fixed) + suffix
}

// ytdlpStream writes the best audio stream of u to out until it ends or ctx is canceled.
func ytdlpStream(ctx context.Context, u string, out io.Writer) error {
	cmd := ytdlp.New().
		Format("bestaudio[ext=webm]/bestaudio").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, u)

	cmd.Stdout = out
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		// The transcoder closing the pipe first is a normal end of stream.
		if ctx.Err() != nil || strings.Contains(strings.ToLower(stderr.String()), "broken pipe") {
			return nil
		}
		return errors.New(strings.TrimSpace(err.Error() + ": " + lastLine(stderr.String())))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
