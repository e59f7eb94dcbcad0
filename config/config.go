package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	defaultPathwayHost = "api-pathway-indexer.staging.deploys.pathway.com"
	defaultPathwayPort = 80
)

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PathwayConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig carries the service identity attached to every log line.
// Endpoint is recorded for operators but logs are not exported anywhere.
type TelemetryConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AppName    string `yaml:"app_name"`
	InstanceID string `yaml:"instance_id"`
}

type Config struct {
	Pathway   PathwayConfig   `yaml:"pathway"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LLM       LLMConfig       `yaml:"llm"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// ConnectedTo overrides the backend name shown in the status banner.
	ConnectedTo    string        `yaml:"connected_to"`
	SystemPrompt   string        `yaml:"system_prompt"`
	RetrieveK      int           `yaml:"retrieve_k"`
	ListenAddr     string        `yaml:"listen_addr"`
	StatusInterval time.Duration `yaml:"status_interval"`

	PostgresDSN string `yaml:"postgres_dsn"`
	Neo4jURI    string `yaml:"neo4j_uri"`
	Neo4jUser   string `yaml:"neo4j_username"`
	Neo4jPass   string `yaml:"neo4j_password"`
}

// Defaults returns the configuration used when neither a file nor the
// environment provides a value.
func Defaults() Config {
	return Config{
		Pathway: PathwayConfig{
			Host:    defaultPathwayHost,
			Port:    defaultPathwayPort,
			Timeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			AppName: "docchat",
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		OllamaHost:     "http://localhost:11434",
		RetrieveK:      3,
		ListenAddr:     ":8501",
		StatusInterval: 30 * time.Second,
	}
}

func Load() Config {
	return applyEnv(Defaults())
}

// LoadFile reads a YAML file over the defaults and then applies environment
// overrides. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return applyEnv(cfg), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	cfg.Pathway.Host = getEnv("PATHWAY_HOST", cfg.Pathway.Host)
	cfg.Pathway.Port = getEnvInt("PATHWAY_PORT", cfg.Pathway.Port)
	cfg.Pathway.APIKey = getEnv("PATHWAY_API_KEY", cfg.Pathway.APIKey)
	cfg.Pathway.Timeout = getEnvDuration("PATHWAY_TIMEOUT", cfg.Pathway.Timeout)

	cfg.Telemetry.Endpoint = getEnv("PATHWAY_TELEMETRY_SERVER", cfg.Telemetry.Endpoint)
	cfg.Telemetry.AppName = getEnv("APP_NAME", cfg.Telemetry.AppName)
	cfg.Telemetry.InstanceID = getEnv("PATHWAY_SERVICE_INSTANCE_ID", cfg.Telemetry.InstanceID)

	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)

	cfg.ConnectedTo = getEnv("CONNECTED_TO", cfg.ConnectedTo)
	cfg.SystemPrompt = getEnv("SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.RetrieveK = getEnvInt("RETRIEVE_K", cfg.RetrieveK)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.StatusInterval = getEnvDuration("STATUS_INTERVAL", cfg.StatusInterval)

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Neo4jURI = getEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUser = getEnv("NEO4J_USERNAME", cfg.Neo4jUser)
	cfg.Neo4jPass = getEnv("NEO4J_PASSWORD", cfg.Neo4jPass)
	return cfg
}

// Validate reports configuration that cannot work at all. Optional
// integrations (Postgres, Neo4j) are not checked here.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Pathway.Host) == "" {
		return fmt.Errorf("pathway host is required")
	}
	if c.Pathway.Port <= 0 || c.Pathway.Port > 65535 {
		return fmt.Errorf("pathway port %d out of range", c.Pathway.Port)
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm timeout must not be negative")
	}
	if c.RetrieveK <= 0 {
		return fmt.Errorf("retrieve_k must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
