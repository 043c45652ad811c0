package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)
	debugColor = color.New(color.FgHiBlack)

	// Component colors
	databaseColor = color.New()
	voiceColor    = color.New(color.FgMagenta)
	autoplayColor = color.New(color.FgHiCyan)
	searchColor   = color.New(color.FgBlue)
	presenceColor = color.New(color.FgGreen)

	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		logName := GetProjectName() + ".log"
		if exePath, exeErr := os.Executable(); exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogAutoplay(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "autoplay"))
}

// LogAutoplayWarn keeps the autoplay tag on degraded-path messages.
func LogAutoplayWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), slog.String("component", "autoplay"))
}

func LogSearch(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "search"))
}

func LogPresence(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "presence"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := r.Time.Format(DefaultTimeFormat)
	if r.Time.IsZero() {
		timeStr = time.Now().Format(DefaultTimeFormat)
	}

	var levelStr string
	var levelColor *color.Color
	switch {
	case r.Level >= slog.LevelError+4:
		levelStr, levelColor = "FATAL", fatalColor
	case r.Level >= slog.LevelError:
		levelStr, levelColor = "ERROR", errorColor
	case r.Level >= slog.LevelWarn:
		levelStr, levelColor = "WARN", warnColor
	case r.Level >= slog.LevelInfo:
		levelStr, levelColor = "INFO", infoColor
	default:
		levelStr, levelColor = "DEBUG", debugColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, r.Message)))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "VOICE":
		return voiceColor
	case "AUTOPLAY":
		return autoplayColor
	case "SEARCH":
		return searchColor
	case "PRESENCE":
		return presenceColor
	default:
		return color.New(color.FgCyan)
	}
}

// colorizeWithResets re-applies the outer color after every embedded reset so
// nested coloring survives inside component logs.
func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

// @core
const (
	MsgConfigFailedToLoad = "Failed to load config: %v"
	MsgConfigMissingToken = "DISCORD_TOKEN is not set in .env file"

	MsgBotStarting     = "Starting %s..."
	MsgBotReady        = "%s is ready! (ID: %s) (PID: %d) (%dms)"
	MsgBotShutdown     = "Shutting down %s..."
	MsgBotRegisterFail = "Command registration failed: %v"
	MsgGenericError    = "%v"
	MsgDaemonStarting  = "Starting..."

	MsgLoaderPanicRecovered  = "Recovered from panic: %v"
	MsgLoaderSyncCommands    = "Syncing commands (%s mode)..."
	MsgLoaderUpToDate        = "Commands are up to date. (Hash: %s)"
	MsgLoaderGlobalFail      = "Failed to register global commands: %w"
	MsgLoaderGlobalOK        = "Registered global command: %s"
	MsgLoaderGuildFail       = "Failed to register guild commands: %v"
	MsgLoaderGuildRegistered = "Registered guild command: %s"
)

// @database
const (
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDatabaseMongoReady  = "Connected to MongoDB database %s"
	MsgDatabaseRecordFail  = "Failed to record play of %s: %v"
)

// @voice
const (
	MsgVoiceJoining       = "Joining channel %s in guild %s"
	MsgVoiceJoinFail      = "Failed to connect to voice in guild %s: %v"
	MsgVoiceQueued        = "Queuing track in guild %s: %s"
	MsgVoicePlaying       = "Playing track: %s · %s (%s)"
	MsgVoiceFinished      = "Playback finished: %s"
	MsgVoiceStopped       = "Playback stopped: %s"
	MsgVoiceStreamFail    = "Stream failed for %s: %v"
	MsgVoiceTranscodeFail = "Transcoder %s failed: %v"
	MsgVoiceDisconnected  = "Bot disconnected by external event in guild %s"
	MsgVoiceShutdown      = "Shutting down voice manager..."
	MsgVoiceNotifyFail    = "Failed to notify guild %s: %v"
)

// @voice replies
const (
	MsgVoiceReplyPlaying   = "🎶 Playing: [%s](%s)"
	MsgVoiceReplyQueued    = "✅ Added to queue: [%s](%s)"
	MsgVoiceReplyPlaylist  = "✅ Added %d tracks to the queue."
	MsgVoiceReplyStopped   = "🛑 Stopped and disconnected."
	MsgVoiceReplySkipped   = "⏭️ Skipped **%s**."
	MsgVoiceReplyQueueHead = "🎶 **Now playing:** [%s](%s)"
	MsgVoiceReplyQueueMore = "…and %d more."
	ErrVoiceNotInChannel   = "You must be in a voice channel to play music."
	ErrVoiceNothingPlaying = "Nothing is playing."
	ErrVoiceNoResults      = "No results for `%s`."
	ErrVoicePlayFail       = "Failed to start player: %v"
)

// @autoplay
const (
	MsgAutoplayEnabled         = "Enabled in guild %s by %s"
	MsgAutoplayDisabled        = "Disabled in guild %s"
	MsgAutoplayQueueHealthy    = "Queue in guild %s has %d tracks, skipping top-up"
	MsgAutoplayRequesting      = "Requesting %d suggestions for guild %s (seed: %s - %s)"
	MsgAutoplayEnqueued        = "Enqueued %d tracks in guild %s"
	MsgAutoplayMiss            = "No tracks enqueued in guild %s (failure %d/%d)"
	MsgAutoplayBreakerTripped  = "Disabling autoplay in guild %s after %d consecutive failures"
	MsgAutoplayFallbackWait    = "Fallback attempt %d/%d in guild %s"
	MsgAutoplayFallbackPrune   = "Pruned %d history entries in guild %s (%d left)"
	MsgAutoplayFallbackGlobal  = "Global fallback enqueued %d tracks in guild %s"
	MsgAutoplayEmergencyPrune  = "Emergency prune removed %d history entries in guild %s"
	MsgAutoplaySourceFail      = "Source %s failed: %v"
	MsgAutoplaySourcePanic     = "Source %s panicked: %v"
	MsgAutoplayResolveFail     = "Could not resolve %s: %v"
	MsgAutoplayEnqueueFail     = "Failed to enqueue %s: %v"
	MsgAutoplayStartFail       = "Failed to start playback in guild %s: %v"
	MsgAutoplayCyclePanic      = "Cycle in guild %s panicked: %v"
	MsgAutoplayDailyCleanup    = "Daily cleanup pruned %d entries across %d guilds"
	MsgAutoplayRemoved         = "Removed session for guild %s"
	MsgAutoplayNoticeDisabled  = "📻 Autoplay has been disabled after repeated failures to find new tracks. Use `/autoplay enable` to turn it back on."
	MsgAutoplayStatusEnabled   = "📻 Autoplay has been **enabled**."
	MsgAutoplayStatusDisabled  = "📻 Autoplay has been **disabled**."
	MsgAutoplayHistoryCleared  = "🧹 Cleared %d tracks from autoplay history."
	MsgAutoplayHistoryPruned   = "🧹 Pruned %d tracks played before %s."
	ErrAutoplayNotInVoice      = "You must be in a voice channel to configure autoplay."
	ErrAutoplayNoSession       = "Autoplay is not active in this server."
	ErrAutoplayPruneParse      = "Could not understand that time. Try 'yesterday', '2 hours ago' or '30m'."
	ErrAutoplayPruneFuture     = "The prune time must be in the past."
)

// @autoplay status
const (
	MsgAutoplayStatusReport  = "📻 Autoplay is **%s** (%s)\nOwner: %s\nHistory: %d tracks\nFailures: %d/%d · Fallback attempts: %d/%d\nLast success: %s"
	MsgAutoplayStatusWorking = "working"
	MsgAutoplayStatusStalled = "stalled"
	MsgAutoplayStatusIdle    = "idle"
	MsgAutoplayStatusNever   = "never"
	MsgAutoplayAdminCleanup  = "🧹 Pruned %d entries across %d servers."
	ErrAutoplayOwnerOnly     = "Only the bot owner can run this."
	ErrAutoplayManageGuild   = "You need the Manage Server permission to change autoplay history."
)

// @search
const (
	MsgSearchBreakerStateChange = "Circuit %s changed from %s to %s"
	MsgSearchRelatedFail        = "Related lookup for %s failed: %v"
	MsgSearchSpotifyDisabled    = "Spotify credentials not set, metadata search disabled"
)

// @presence
const (
	MsgPresenceRotated       = "Presence set to: %s (next in %v)"
	MsgPresenceUpdateFail    = "Failed to update presence: %v"
	MsgPresenceReplyVisible  = "✅ Presence rotation enabled!"
	MsgPresenceReplyHidden   = "✅ Presence rotation disabled!"
	MsgPresenceReplySaveFail = "Failed to save presence setting: %v"
	ErrGenericFailure        = "Something went wrong, please try again."
)

// @metrics
const (
	MsgMetricsServeFail = "Metrics server on %s stopped: %v"
)
