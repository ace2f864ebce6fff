package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ollama    OllamaConfig
	Retrieval RetrievalConfig
	Ticket    TicketConfig
	Loader    LoaderConfig
	Logger    LoggerConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the keyword/value connection string pgx expects.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type OllamaConfig struct {
	BaseURL    string
	LLMModel   string
	EmbedModel string
	Timeout    time.Duration
}

type RetrievalConfig struct {
	// K is the breadth of the initial similarity search.
	K int
	// TopK is how many candidates survive reranking.
	TopK int
	// SelfEval toggles the second model call that rates answer groundedness.
	SelfEval bool
}

type TicketConfig struct {
	APIURL  string
	Timeout time.Duration
}

type LoaderConfig struct {
	DocsDir      string
	ArchiveDir   string
	BadDir       string
	ConverterURL string
	ChunkSize    int
	ChunkOverlap int
	Watch        bool
	PollInterval time.Duration
}

type LoggerConfig struct {
	Level string
}

// Load reads configuration from the environment, with a .env file as an
// optional source. Missing values fall back to defaults suitable for a
// local setup.
func Load() *Config {
	// .env is optional: containers usually inject variables directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnvInt("PG_PORT", 5432),
			User:     getEnv("PG_USER", "postgres"),
			Password: getEnv("PG_PASS", "postgres"),
			Name:     getEnv("PG_DB_NAME", "intranet"),
			SSLMode:  getEnv("PG_SSL_MODE", "disable"),
		},
		Ollama: OllamaConfig{
			BaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMModel:   getEnv("OLLAMA_LLM_MODEL", "llama3.2"),
			EmbedModel: getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Timeout:    time.Duration(getEnvInt("OLLAMA_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Retrieval: RetrievalConfig{
			K:        getEnvInt("RETRIEVAL_K", 15),
			TopK:     getEnvInt("RERANK_TOP_K", 3),
			SelfEval: getEnvBool("SELF_EVAL", true),
		},
		Ticket: TicketConfig{
			APIURL:  getEnv("TICKET_API_URL", "http://localhost:4000"),
			Timeout: time.Duration(getEnvInt("TICKET_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Loader: LoaderConfig{
			DocsDir:      getEnv("LOADER_DOCS_DIR", "./demo_docs"),
			ArchiveDir:   getEnv("LOADER_ARCHIVE_DIR", "./archive"),
			BadDir:       getEnv("LOADER_BAD_DIR", "./bad"),
			ConverterURL: getEnv("LOADER_CONVERTER_URL", "http://localhost:5001/v1/convert/file"),
			ChunkSize:    getEnvInt("CHUNK_SIZE", 120),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 20),
			Watch:        getEnvBool("LOADER_WATCH", false),
			PollInterval: time.Duration(getEnvInt("LOADER_POLL_SECONDS", 5)) * time.Second,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
