package config

import (
	"errors"
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
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
)

var (
	DefaultEmployeeKeywords = []string{
		"my", "i", "me", "balance", "manager", "leaves left",
		"my department", "my role", "my manager", "how many leaves",
		"contact", "who is", "when did i join", "my email", "my phone",
	}
	DefaultPolicyKeywords = []string{
		"policy", "policies", "benefits", "maternity", "paternity",
		"onboarding", "handbook", "guide", "eligibility", "apply for",
		"procedure", "process", "rules", "regulations", "entitled",
		"sick leave policy", "casual leave", "earned leave", "how to",
	}
)

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RAGConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	RetrievalK          int     `yaml:"retrieval_k"`
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
	MaxPromptSize       int     `yaml:"max_prompt_size"`
	HistoryTurns        int     `yaml:"history_turns"`
}

type KeywordConfig struct {
	Employee []string `yaml:"employee"`
	Policy   []string `yaml:"policy"`
}

type Config struct {
	Embeddings EmbeddingConfig `yaml:"embeddings"`
	LLM        LLMConfig       `yaml:"llm"`
	RAG        RAGConfig       `yaml:"rag"`
	Keywords   KeywordConfig   `yaml:"keywords"`

	GoogleAPIKey  string `yaml:"google_api_key"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OllamaHost    string `yaml:"ollama_host"`

	EmployeeDataPath string `yaml:"employee_data_path"`
	PoliciesDir      string `yaml:"policies_dir"`
	SnapshotPath     string `yaml:"snapshot_path"`

	PostgresDSN string `yaml:"postgres_dsn"`
	Neo4jURI    string `yaml:"neo4j_uri"`
	Neo4jUser   string `yaml:"neo4j_user"`
	Neo4jPass   string `yaml:"neo4j_password"`

	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Defaults() Config {
	return Config{
		Embeddings: EmbeddingConfig{
			Provider:  ProviderGemini,
			Model:     "text-embedding-004",
			Dimension: 768,
		},
		LLM: LLMConfig{
			Provider:    ProviderGemini,
			Model:       "gemini-2.0-flash",
			Temperature: 0.7,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
		},
		RAG: RAGConfig{
			ChunkSize:           1000,
			ChunkOverlap:        200,
			RetrievalK:          4,
			SimilarityThreshold: 0.5,
			MaxPromptSize:       16000,
			HistoryTurns:        2,
		},
		Keywords: KeywordConfig{
			Employee: append([]string(nil), DefaultEmployeeKeywords...),
			Policy:   append([]string(nil), DefaultPolicyKeywords...),
		},
		OllamaHost:       "http://localhost:11434",
		EmployeeDataPath: "data/employee_data.csv",
		PoliciesDir:      "data/policies",
		Neo4jURI:         "neo4j://localhost:7687",
		Neo4jUser:        "neo4j",
		HTTPAddr:         ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load builds the configuration from defaults and environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults. Environment variables still
// take precedence over values from the file.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errs = append(errs, fmt.Errorf("GENERATION_TEMPERATURE must be between 0 and 1, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("GENERATION_MAX_TOKENS must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("GENERATION_TIMEOUT must be positive, got %s", c.LLM.Timeout))
	}
	if c.RAG.RetrievalK < 1 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_K must be at least 1, got %d", c.RAG.RetrievalK))
	}
	if c.RAG.ChunkSize < 100 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be at least 100, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.RAG.ChunkOverlap))
	}
	if c.RAG.SimilarityThreshold < -1 || c.RAG.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD must be between -1 and 1, got %v", c.RAG.SimilarityThreshold))
	}
	if c.RAG.MaxPromptSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PROMPT_SIZE must be positive, got %d", c.RAG.MaxPromptSize))
	}
	if c.RAG.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("HISTORY_TURNS cannot be negative, got %d", c.RAG.HistoryTurns))
	}
	if len(c.Keywords.Employee) == 0 {
		errs = append(errs, errors.New("EMPLOYEE_KEYWORDS cannot be empty"))
	}
	if len(c.Keywords.Policy) == 0 {
		errs = append(errs, errors.New("POLICY_KEYWORDS cannot be empty"))
	}
	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embeddings.Dimension))
	}

	for _, provider := range []string{c.LLM.Provider, c.Embeddings.Provider} {
		switch provider {
		case ProviderGemini:
			if c.GoogleAPIKey == "" {
				errs = append(errs, errors.New("gemini provider selected but GOOGLE_API_KEY not set"))
			}
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				errs = append(errs, errors.New("openai provider selected but OPENAI_API_KEY not set"))
			}
		case ProviderOllama, ProviderHash:
		default:
			errs = append(errs, fmt.Errorf("unknown provider: %q", provider))
		}
	}
	if c.LLM.Provider == ProviderHash {
		errs = append(errs, errors.New("hash provider only supports embeddings"))
	}

	return errors.Join(errs...)
}

func applyEnv(cfg *Config) error {
	cfg.Embeddings.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("EMBEDDING_MODEL", cfg.Embeddings.Model)
	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("MODEL_NAME", cfg.LLM.Model)

	cfg.GoogleAPIKey = getEnv("GOOGLE_API_KEY", cfg.GoogleAPIKey)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)

	cfg.EmployeeDataPath = getEnv("EMPLOYEE_DATA_PATH", cfg.EmployeeDataPath)
	cfg.PoliciesDir = getEnv("POLICIES_DIR", cfg.PoliciesDir)
	cfg.SnapshotPath = getEnv("SNAPSHOT_PATH", cfg.SnapshotPath)

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Neo4jURI = getEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUser = getEnv("NEO4J_USER", cfg.Neo4jUser)
	cfg.Neo4jPass = getEnv("NEO4J_PASSWORD", cfg.Neo4jPass)

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.Keywords.Employee = getEnvList("EMPLOYEE_KEYWORDS", cfg.Keywords.Employee)
	cfg.Keywords.Policy = getEnvList("POLICY_KEYWORDS", cfg.Keywords.Policy)

	var err error
	if cfg.Embeddings.Dimension, err = getEnvInt("EMBEDDING_DIMENSION", cfg.Embeddings.Dimension); err != nil {
		return err
	}
	if cfg.RAG.ChunkSize, err = getEnvInt("CHUNK_SIZE", cfg.RAG.ChunkSize); err != nil {
		return err
	}
	if cfg.RAG.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", cfg.RAG.ChunkOverlap); err != nil {
		return err
	}
	if cfg.RAG.RetrievalK, err = getEnvInt("RETRIEVAL_K", cfg.RAG.RetrievalK); err != nil {
		return err
	}
	if cfg.RAG.MaxPromptSize, err = getEnvInt("MAX_PROMPT_SIZE", cfg.RAG.MaxPromptSize); err != nil {
		return err
	}
	if cfg.RAG.HistoryTurns, err = getEnvInt("HISTORY_TURNS", cfg.RAG.HistoryTurns); err != nil {
		return err
	}
	if cfg.LLM.MaxTokens, err = getEnvInt("GENERATION_MAX_TOKENS", cfg.LLM.MaxTokens); err != nil {
		return err
	}
	if cfg.RAG.SimilarityThreshold, err = getEnvFloat("SIMILARITY_THRESHOLD", cfg.RAG.SimilarityThreshold); err != nil {
		return err
	}
	if cfg.LLM.Temperature, err = getEnvFloat("GENERATION_TEMPERATURE", cfg.LLM.Temperature); err != nil {
		return err
	}
	if cfg.LLM.Timeout, err = getEnvDuration("GENERATION_TIMEOUT", cfg.LLM.Timeout); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvFloat(key string, fallback float32) (float32, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return float32(value), nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
