package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	OpenAI     OpenAIConfig
	ElevenLabs ElevenLabsConfig
	R2         R2Config
	Zitadel    ZitadelConfig
	Pipeline   PipelineConfig
	Gateway    GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SubmitPerHour   int
	RecreatePerHour int
	FeedPerMin      int
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string // vision + enhancement prompts
	FastModel  string // audio object synthesis
	ImageModel string // image edits
}

type ElevenLabsConfig struct {
	APIKey           string
	BaseURL          string
	MusicModel       string
	PromptInfluence  float64
	PlanTimeoutSec   int
	RenderTimeoutSec int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type PipelineConfig struct {
	AnalysisTimeoutSec  int
	SynthesisTimeoutSec int
	MorphTimeoutSec     int
	MaxImageSizeMB      int
	TraceDir            string // empty disables traces
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OPENAI_API_KEY")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("openai.fast_model", "OPENAI_FAST_MODEL")
	_ = viper.BindEnv("openai.image_model", "OPENAI_IMAGE_MODEL")
	_ = viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")
	_ = viper.BindEnv("elevenlabs.music_model", "ELEVENLABS_MUSIC_MODEL")
	_ = viper.BindEnv("elevenlabs.prompt_influence", "ELEVENLABS_PROMPT_INFLUENCE")
	_ = viper.BindEnv("elevenlabs.plan_timeout", "ELEVENLABS_PLAN_TIMEOUT")
	_ = viper.BindEnv("elevenlabs.render_timeout", "ELEVENLABS_RENDER_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("pipeline.analysis_timeout", "PIPELINE_ANALYSIS_TIMEOUT")
	_ = viper.BindEnv("pipeline.synthesis_timeout", "PIPELINE_SYNTHESIS_TIMEOUT")
	_ = viper.BindEnv("pipeline.morph_timeout", "PIPELINE_MORPH_TIMEOUT")
	_ = viper.BindEnv("pipeline.max_image_size_mb", "MAX_IMAGE_SIZE_MB")
	_ = viper.BindEnv("pipeline.trace_dir", "PIPELINE_TRACE_DIR")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.submit_per_hour", 30)
	viper.SetDefault("ratelimit.recreate_per_hour", 20)
	viper.SetDefault("ratelimit.feed_per_min", 120)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.fast_model", "gpt-4o-mini")
	viper.SetDefault("openai.image_model", "gpt-image-1")

	// ElevenLabs defaults
	viper.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	viper.SetDefault("elevenlabs.music_model", "music_v1")
	viper.SetDefault("elevenlabs.prompt_influence", 0.85)
	viper.SetDefault("elevenlabs.plan_timeout", 30)
	viper.SetDefault("elevenlabs.render_timeout", 120)

	// Pipeline defaults
	viper.SetDefault("pipeline.analysis_timeout", 30)
	viper.SetDefault("pipeline.synthesis_timeout", 30)
	viper.SetDefault("pipeline.morph_timeout", 90)
	viper.SetDefault("pipeline.max_image_size_mb", 10)
	viper.SetDefault("pipeline.trace_dir", "")

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour:   viper.GetInt("ratelimit.submit_per_hour"),
			RecreatePerHour: viper.GetInt("ratelimit.recreate_per_hour"),
			FeedPerMin:      viper.GetInt("ratelimit.feed_per_min"),
		},
		OpenAI: OpenAIConfig{
			APIKey:     viper.GetString("openai.api_key"),
			BaseURL:    viper.GetString("openai.base_url"),
			Model:      viper.GetString("openai.model"),
			FastModel:  viper.GetString("openai.fast_model"),
			ImageModel: viper.GetString("openai.image_model"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:           viper.GetString("elevenlabs.api_key"),
			BaseURL:          viper.GetString("elevenlabs.base_url"),
			MusicModel:       viper.GetString("elevenlabs.music_model"),
			PromptInfluence:  viper.GetFloat64("elevenlabs.prompt_influence"),
			PlanTimeoutSec:   viper.GetInt("elevenlabs.plan_timeout"),
			RenderTimeoutSec: viper.GetInt("elevenlabs.render_timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Pipeline: PipelineConfig{
			AnalysisTimeoutSec:  viper.GetInt("pipeline.analysis_timeout"),
			SynthesisTimeoutSec: viper.GetInt("pipeline.synthesis_timeout"),
			MorphTimeoutSec:     viper.GetInt("pipeline.morph_timeout"),
			MaxImageSizeMB:      viper.GetInt("pipeline.max_image_size_mb"),
			TraceDir:            viper.GetString("pipeline.trace_dir"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
