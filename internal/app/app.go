package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"voice-search-assistant/internal/assistant"
	"voice-search-assistant/internal/config"
	"voice-search-assistant/internal/events"
	"voice-search-assistant/internal/observability/logging"
	"voice-search-assistant/internal/service/agent"
	"voice-search-assistant/internal/service/recognition"
	"voice-search-assistant/internal/service/resolver"
	"voice-search-assistant/internal/service/search"
	"voice-search-assistant/internal/service/stt"
	"voice-search-assistant/internal/service/stt/google"
	"voice-search-assistant/internal/service/stt/mock"
	"voice-search-assistant/internal/service/suggestion"
	"voice-search-assistant/internal/sqlite"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Sessions    *assistant.Manager
	Store       suggestion.Store

	publisher    *events.Publisher
	db           *sqlite.DB
	speechClient *speech.Client
	ready        atomic.Bool
	closeOnce    sync.Once
}

// New constructs the Application and its collaborators from cfg.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{Cfg: cfg}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	if lang := cfg.STT.LanguageCode; lang != "" && !recognition.ValidLanguage(lang) {
		return nil, fmt.Errorf("stt language %q: %w", lang, recognition.ErrUnsupportedLanguage)
	}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.Store = store

	factory, err := a.sttFactory(ctx)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	searchClient := search.NewClient(search.Config{
		AppID:   cfg.Search.AppID,
		APIKey:  cfg.Search.APIKey,
		BaseURL: cfg.Search.BaseURL,
		Timeout: cfg.Search.Timeout,
	})
	agentClient := agent.NewClient(agent.Config{
		AppID:    cfg.Search.AppID,
		APIKey:   cfg.Search.APIKey,
		AgentID:  cfg.Agent.AgentID,
		Endpoint: cfg.Agent.Endpoint,
		Timeout:  cfg.Agent.Timeout,
	})

	a.publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicMessages:    cfg.Kafka.TopicMessages,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		TopicSubmissions: cfg.Kafka.TopicSubmissions,
		Principal:        cfg.Kafka.Principal,
	})

	a.Sessions = assistant.NewManager(SessionConfig(cfg), assistant.Deps{
		Searcher:  searchClient,
		Suggester: searchClient,
		Streamer:  agentClient,
		Tools:     agent.NewTools(searchClient, cfg.Search.ArticlesIndex),
		Store:     store,
		Publisher: a.publisher,
		STT:       factory,
		Clock:     clockwork.NewRealClock(),
	})

	appLogger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("store", cfg.Store.Backend).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Voice search assistant application created")
	return a, nil
}

// SessionConfig maps service configuration onto per-session settings.
func SessionConfig(cfg *config.Config) assistant.Config {
	return assistant.Config{
		ArticlesIndex:    cfg.Search.ArticlesIndex,
		SuggestionsIndex: cfg.Search.SuggestionsIndex,
		HitsPerPage:      cfg.Search.HitsPerPage,
		SuggestionCount:  cfg.Search.SuggestionCount,
		RefineDebounce:   cfg.Search.RefineDebounce,
		Recognition: recognition.Config{
			Mode:     recognition.ParseMode(cfg.Recognition.Mode),
			Language: cfg.STT.LanguageCode,
			Provider: cfg.STT.Provider,
			Limits: recognition.Limits{
				MaxAudioBytes: cfg.Recognition.MaxAudioBytes,
				MaxDuration:   cfg.Recognition.MaxDuration,
				MaxResults:    cfg.Recognition.MaxResults,
			},
		},
		Resolver: resolver.Config{
			TopK:           cfg.Resolver.TopK,
			DriftTolerance: cfg.Resolver.DriftTolerance,
			SearchTimeout:  cfg.Resolver.SearchTimeout,
		},
	}
}

// loggerOnce guards the global logger: handlers of an earlier Application
// may still be logging through it when another one is built.
var loggerOnce sync.Once

// setupLogger configures zerolog for the service. Only the first
// Application in a process installs the global logger.
func (a *Application) setupLogger() {
	loggerOnce.Do(func() {
		format := a.Cfg.Observability.LogFormat
		if a.Cfg.Service.Env == "dev" {
			format = "console"
		}
		lc := logging.DefaultConfig()
		lc.Level = a.Cfg.Observability.LogLevel
		lc.Format = format
		logging.Init(lc)
	})

	a.Logger = logging.WithComponent("application")

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

func (a *Application) openStore() (suggestion.Store, error) {
	switch a.Cfg.Store.Backend {
	case "memory":
		return suggestion.NewMemoryStore(), nil
	case "sqlite", "":
		db, err := sqlite.New(a.Cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open suggestion store: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate suggestion store: %w", err)
		}
		a.db = db
		return sqlite.NewSuggestionRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.Cfg.Store.Backend)
	}
}

// sttFactory returns nil when speech recognition is disabled, which leaves
// sessions without a mic.
func (a *Application) sttFactory(ctx context.Context) (stt.Factory, error) {
	sc := a.Cfg.STT
	switch sc.Provider {
	case "none", "":
		return nil, nil
	case "mock":
		return mock.Factory(mock.Config{Delay: sc.MockDelay, Autoplay: sc.MockAutoplay}), nil
	case "google":
		if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			a.Logger.Warn().Msg("GOOGLE_APPLICATION_CREDENTIALS not set, relying on default credentials")
		}
		client, err := speech.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create speech client: %w", err)
		}
		a.speechClient = client
		gc := google.DefaultConfig()
		gc.LanguageCode = sc.LanguageCode
		gc.SampleRateHz = int32(sc.SampleRateHz)
		gc.InterimResults = sc.InterimResults
		gc.AudioEncoding = sc.AudioEncoding
		return google.Factory(client, gc), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", sc.Provider)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Voice search assistant starting")

	return nil
}

// Ready reports whether the application accepts traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown closes every session and releases shared resources.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	if a.Sessions != nil {
		a.Sessions.CloseAll()
	}
	a.closeResources()

	shutdownLogger.Info().Msg("Voice search assistant shut down")
}

func (a *Application) closeResources() {
	a.closeOnce.Do(a.release)
}

func (a *Application) release() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
	if a.speechClient != nil {
		if err := a.speechClient.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close speech client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close suggestion store")
		}
	}
}
