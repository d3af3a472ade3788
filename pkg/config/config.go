package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr        string  `yaml:"addr"`
		RateLimit   float64 `yaml:"rate_limit"`
		RateBurst   int     `yaml:"rate_burst"`
		MaxUploadMB int64   `yaml:"max_upload_mb"`
		Streaming   bool    `yaml:"streaming"`
	} `yaml:"server"`

	LLM struct {
		Provider       string  `yaml:"provider"`
		BaseURL        string  `yaml:"base_url"`
		APIKey         string  `yaml:"api_key"`
		Model          string  `yaml:"model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
		SystemTemplate string  `yaml:"system_template"`
	} `yaml:"llm"`

	Embedder struct {
		Provider string `yaml:"provider"`
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"embedder"`

	Database struct {
		URL            string  `yaml:"url"`
		TableName      string  `yaml:"table_name"`
		VectorDim      int     `yaml:"vector_dim"`
		BatchSize      int     `yaml:"batch_size"`
		MatchThreshold float64 `yaml:"match_threshold"`
		MatchCount     int     `yaml:"match_count"`
	} `yaml:"database"`

	Storage struct {
		Endpoint      string `yaml:"endpoint"`
		AccessKey     string `yaml:"access_key"`
		SecretKey     string `yaml:"secret_key"`
		Bucket        string `yaml:"bucket"`
		Secure        bool   `yaml:"secure"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"storage"`

	Scraper struct {
		MaxDepth           int      `yaml:"max_depth"`
		RateLimit          float64  `yaml:"rate_limit"`
		TimeoutSecs        int      `yaml:"timeout_secs"`
		UserAgent          string   `yaml:"user_agent"`
		MinParagraphLength int      `yaml:"min_paragraph_length"`
		IgnorePatterns     []string `yaml:"ignore_patterns"`
		AllowedExtensions  []string `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Processor struct {
		ChunkSize       int `yaml:"chunk_size"`
		ChunkOverlap    int `yaml:"chunk_overlap"`
		WebChunkSize    int `yaml:"web_chunk_size"`
		WebChunkOverlap int `yaml:"web_chunk_overlap"`
	} `yaml:"processor"`

	Cache struct {
		RedisURL string `yaml:"redis_url"`
		TTLSecs  int    `yaml:"ttl_secs"`
	} `yaml:"cache"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/docqa/config.yaml"),
			"/etc/docqa/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(config)

	// Apply defaults for unset values
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

// newConfig presets the values whose zero value is meaningful, so a file
// that sets them to zero is respected.
func newConfig() *Config {
	config := &Config{}
	config.Server.Streaming = true
	config.Database.MatchThreshold = 0.2
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.RateLimit == 0 {
		config.Server.RateLimit = 10
	}
	if config.Server.RateBurst == 0 {
		config.Server.RateBurst = 20
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "gemini"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "gemini-2.5-flash"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "huggingface"
	}
	if config.Embedder.Model == "" {
		if config.Embedder.Provider == "ollama" {
			config.Embedder.Model = "nomic-embed-text:latest"
		} else {
			config.Embedder.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
	}
	if config.Embedder.Provider == "ollama" && config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 384
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}
	if config.Database.MatchCount == 0 {
		config.Database.MatchCount = 5
	}

	if config.Storage.Bucket == "" {
		config.Storage.Bucket = "documents"
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSecs == 0 {
		config.Scraper.TimeoutSecs = 30
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "Mozilla/5.0"
	}
	if config.Scraper.MinParagraphLength == 0 {
		config.Scraper.MinParagraphLength = 200
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 800
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 100
	}
	if config.Processor.WebChunkSize == 0 {
		config.Processor.WebChunkSize = 800
	}
	if config.Processor.WebChunkOverlap == 0 {
		config.Processor.WebChunkOverlap = 150
	}

	if config.Cache.TTLSecs == 0 {
		config.Cache.TTLSecs = 24 * 60 * 60
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}
}

func mergeWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedder.Provider == "ollama" {
			config.Embedder.BaseURL = baseURL
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if token := os.Getenv("HUGGINGFACE_API_TOKEN"); token != "" {
		config.Embedder.APIKey = token
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		config.Storage.AccessKey = accessKey
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		config.Storage.SecretKey = secretKey
	}
	if secure := os.Getenv("MINIO_SECURE"); secure != "" {
		if v, err := strconv.ParseBool(secure); err == nil {
			config.Storage.Secure = v
		}
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Cache.RedisURL = redisURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
