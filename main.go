package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/leeineian/jukebox/home"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const cleanupInterval = time.Hour

// historyBackend is what both play history stores provide.
type historyBackend interface {
	proc.HistoryStore
	sys.HistoryWriter
}

func main() {
	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Force re-registration of commands")
	flag.Parse()

	cfg, err := sys.LoadConfig()
	sys.InitLogger(*silent || (cfg != nil && cfg.Silent), true)
	if err != nil {
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}

	if err := sys.InitDatabase(context.Background(), cfg.DatabasePath); err != nil {
		sys.LogFatal("Failed to initialize database: %v", err)
	}
	defer sys.CloseDatabase()

	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())

	if err := run(cfg, *silent, *skipReg, *clearAll); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
}

func run(cfg *sys.Config, silent, skipReg, clearAll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	sys.SetAppContext(ctx)

	history, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	search := proc.NewYouTubeSearch(cfg.SearchRateLimit)
	opts := []proc.SuggestionOption{proc.WithRelatedProvider(search)}
	if cfg.SpotifyID != "" && cfg.SpotifySecret != "" {
		opts = append(opts, proc.WithMetadataSearcher(proc.NewSpotifyMetadata(ctx, cfg.SpotifyID, cfg.SpotifySecret)))
	} else {
		sys.LogSearch(sys.MsgSearchSpotifyDisabled)
	}

	vm := proc.GetVoiceManager()
	vm.SetHistoryWriter(history)

	manager := proc.NewAutoplayManager(ctx, proc.AutoplayDeps{
		Players:   vm,
		Search:    search,
		Suggester: proc.NewSuggestion(history, opts...),
		Notifier:  proc.NewChannelNotifier(vm),
		Config:    cfg.Autoplay,
	})
	manager.Attach(vm)
	home.Setup(search, manager)

	presence := proc.NewPresenceRotator(vm, manager)
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		manager.SetBotID(client.ID())
		sys.RegisterDaemon(sys.LogPresence, presence.Daemon(client))
	})
	sys.RegisterDaemon(sys.LogAutoplay, manager.CleanupDaemon(cleanupInterval))
	sys.RegisterDaemon(sys.LogInfo, sys.MetricsDaemon(cfg.MetricsAddr))

	client, err := sys.CreateClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	if !skipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID, clearAll); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo("Skipping command registration as requested.")
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	sys.LogInfo("Shutting down all daemons...")
	sys.ShutdownDaemons(context.Background())

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(sys.MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	}
	return nil
}

// openHistory picks the play history backend. SQLite shares the bot database.
func openHistory(ctx context.Context, cfg *sys.Config) (historyBackend, func(), error) {
	if cfg.HistoryBackend != sys.BackendMongo {
		return sys.NewSQLiteHistoryStore(sys.DB), func() {}, nil
	}

	store, err := sys.NewMongoHistoryStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return store, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}, nil
}
