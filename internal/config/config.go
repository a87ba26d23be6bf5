// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	HTTP          HTTPConfig          `yaml:"http"`
	STT           STTConfig           `yaml:"stt"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Search        SearchConfig        `yaml:"search"`
	Agent         AgentConfig         `yaml:"agent"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	Store         StoreConfig         `yaml:"store"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
	Prompts       []Prompt            `yaml:"prompts"`
}

type ServiceConfig struct {
	Principal string `yaml:"principal"`
	GRPCPort  string `yaml:"grpcPort"`
	Env       string `yaml:"env"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type STTConfig struct {
	Provider       string        `yaml:"provider"` // "mock", "google" or "none"
	LanguageCode   string        `yaml:"languageCode"`
	SampleRateHz   int           `yaml:"sampleRateHz"`
	InterimResults bool          `yaml:"interimResults"`
	AudioEncoding  string        `yaml:"audioEncoding"`
	MockAutoplay   bool          `yaml:"mockAutoplay"`
	MockDelay      time.Duration `yaml:"mockDelay"`
}

type RecognitionConfig struct {
	Mode          string        `yaml:"mode"` // "event" or "end"
	MaxAudioBytes int64         `yaml:"maxAudioBytes"`
	MaxDuration   time.Duration `yaml:"maxDuration"`
	MaxResults    int           `yaml:"maxResults"`
}

type SearchConfig struct {
	AppID            string        `yaml:"appId"`
	APIKey           string        `yaml:"apiKey"`
	BaseURL          string        `yaml:"baseUrl"`
	ArticlesIndex    string        `yaml:"articlesIndex"`
	SuggestionsIndex string        `yaml:"suggestionsIndex"`
	HitsPerPage      int           `yaml:"hitsPerPage"`
	SuggestionCount  int           `yaml:"suggestionCount"`
	RefineDebounce   time.Duration `yaml:"refineDebounce"`
	Timeout          time.Duration `yaml:"timeout"`
}

type AgentConfig struct {
	AgentID  string        `yaml:"agentId"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ResolverConfig struct {
	TopK           int           `yaml:"topK"`
	DriftTolerance int           `yaml:"driftTolerance"`
	SearchTimeout  time.Duration `yaml:"searchTimeout"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "memory"
	Path    string `yaml:"path"`
}

type KafkaConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Brokers          []string `yaml:"brokers"`
	TopicMessages    string   `yaml:"topicMessages"`
	TopicTranscripts string   `yaml:"topicTranscripts"`
	TopicSubmissions string   `yaml:"topicSubmissions"`
	Principal        string   `yaml:"principal"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Prompt is a quick prompt offered to the user.
type Prompt struct {
	Label   string `yaml:"label" json:"label"`
	Message string `yaml:"message" json:"message"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal: "svc-voice-search",
			GRPCPort:  "50051",
			Env:       "prod",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		STT: STTConfig{
			Provider:       "mock",
			LanguageCode:   "en-US",
			SampleRateHz:   16000,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
			MockDelay:      50 * time.Millisecond,
		},
		Recognition: RecognitionConfig{
			Mode:          "event",
			MaxAudioBytes: 5 * 1024 * 1024,
			MaxDuration:   time.Minute,
			MaxResults:    500,
		},
		Search: SearchConfig{
			ArticlesIndex:    "news_paper_generic_v2",
			SuggestionsIndex: "nextjs-live-transcription",
			HitsPerPage:      10,
			SuggestionCount:  5,
			RefineDebounce:   150 * time.Millisecond,
			Timeout:          5 * time.Second,
		},
		Agent: AgentConfig{
			Timeout: 60 * time.Second,
		},
		Resolver: ResolverConfig{
			TopK:           5,
			DriftTolerance: 1,
			SearchTimeout:  600 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "suggestions.db",
		},
		Kafka: KafkaConfig{
			Brokers:          []string{"localhost:9092"},
			TopicMessages:    "assistant.messages",
			TopicTranscripts: "assistant.transcripts",
			TopicSubmissions: "assistant.submissions",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
		Prompts: []Prompt{
			{Label: "influential celebrities", Message: "influential celebrities"},
			{Label: "What are the latest fashion trends?", Message: "What are the latest fashion trends?"},
			{Label: "current state of the retail industry", Message: "current state of the retail industry"},
		},
	}
}

// Load builds the configuration. A YAML file named by CONFIG_PATH overrides
// the defaults; environment variables override both.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.Env = envOrDefault("ENV", cfg.Service.Env)

	cfg.HTTP.Addr = envOrDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout = envOrDefaultDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", cfg.STT.SampleRateHz)
	cfg.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", cfg.STT.InterimResults)
	cfg.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.AudioEncoding)
	cfg.STT.MockAutoplay = envOrDefaultBool("STT_MOCK_AUTOPLAY", cfg.STT.MockAutoplay)
	cfg.STT.MockDelay = envOrDefaultDuration("STT_MOCK_DELAY", cfg.STT.MockDelay)

	cfg.Recognition.Mode = envOrDefault("RECOGNITION_MODE", cfg.Recognition.Mode)
	cfg.Recognition.MaxAudioBytes = envOrDefaultInt64("RECOGNITION_MAX_AUDIO_BYTES", cfg.Recognition.MaxAudioBytes)
	cfg.Recognition.MaxDuration = envOrDefaultDuration("RECOGNITION_MAX_DURATION", cfg.Recognition.MaxDuration)
	cfg.Recognition.MaxResults = envOrDefaultInt("RECOGNITION_MAX_RESULTS", cfg.Recognition.MaxResults)

	cfg.Search.AppID = envOrDefault("ALGOLIA_APP_ID", cfg.Search.AppID)
	cfg.Search.APIKey = envOrDefault("ALGOLIA_API_KEY", cfg.Search.APIKey)
	cfg.Search.BaseURL = envOrDefault("ALGOLIA_BASE_URL", cfg.Search.BaseURL)
	cfg.Search.ArticlesIndex = envOrDefault("SEARCH_ARTICLES_INDEX", cfg.Search.ArticlesIndex)
	cfg.Search.SuggestionsIndex = envOrDefault("SEARCH_SUGGESTIONS_INDEX", cfg.Search.SuggestionsIndex)
	cfg.Search.HitsPerPage = envOrDefaultInt("SEARCH_HITS_PER_PAGE", cfg.Search.HitsPerPage)
	cfg.Search.SuggestionCount = envOrDefaultInt("SEARCH_SUGGESTION_COUNT", cfg.Search.SuggestionCount)
	cfg.Search.RefineDebounce = envOrDefaultDuration("SEARCH_REFINE_DEBOUNCE", cfg.Search.RefineDebounce)
	cfg.Search.Timeout = envOrDefaultDuration("SEARCH_TIMEOUT", cfg.Search.Timeout)

	cfg.Agent.AgentID = envOrDefault("ALGOLIA_AGENT_ID", cfg.Agent.AgentID)
	cfg.Agent.Endpoint = envOrDefault("AGENT_ENDPOINT", cfg.Agent.Endpoint)
	cfg.Agent.Timeout = envOrDefaultDuration("AGENT_TIMEOUT", cfg.Agent.Timeout)

	cfg.Resolver.TopK = envOrDefaultInt("RESOLVER_TOP_K", cfg.Resolver.TopK)
	cfg.Resolver.DriftTolerance = envOrDefaultInt("RESOLVER_DRIFT_TOLERANCE", cfg.Resolver.DriftTolerance)
	cfg.Resolver.SearchTimeout = envOrDefaultDuration("RESOLVER_SEARCH_TIMEOUT", cfg.Resolver.SearchTimeout)

	cfg.Store.Backend = envOrDefault("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicMessages = envOrDefault("KAFKA_TOPIC_MESSAGES", cfg.Kafka.TopicMessages)
	cfg.Kafka.TopicTranscripts = envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", cfg.Kafka.TopicTranscripts)
	cfg.Kafka.TopicSubmissions = envOrDefault("KAFKA_TOPIC_SUBMISSIONS", cfg.Kafka.TopicSubmissions)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Observability.MetricsAddr)

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
