package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/xhad/dossier/pkg/policy"
)

type Config struct {
	LLM       LLMConfig          `yaml:"llm"`
	Search    SearchConfig       `yaml:"search"`
	Scraper   ScraperConfig      `yaml:"scraper"`
	Processor ProcessorConfig    `yaml:"processor"`
	Paths     PathsConfig        `yaml:"paths"`
	Domains   map[string]float64 `yaml:"domains"`
	Database  DatabaseConfig     `yaml:"database"`
	Ledger    LedgerConfig       `yaml:"ledger"`
	Logging   LoggingConfig      `yaml:"logging"`
	Server    ServerConfig       `yaml:"server"`
}

type LLMConfig struct {
	// Provider is "googleai" or "ollama".
	Provider        string        `yaml:"provider"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Models          ModelsConfig  `yaml:"models"`
	EmbeddingModel  string        `yaml:"embedding_model"`
	CallDelay       time.Duration `yaml:"call_delay"`
	FusionMaxTokens int           `yaml:"fusion_max_tokens"`
}

type ModelsConfig struct {
	Clean     string `yaml:"clean"`
	Relevance string `yaml:"relevance"`
	Summary   string `yaml:"summary"`
	Fusion    string `yaml:"fusion"`
	Market    string `yaml:"market"`
}

type SearchConfig struct {
	// Provider is "yandex" or "duckduckgo".
	Provider          string        `yaml:"provider"`
	IAMToken          string        `yaml:"iam_token"`
	FolderID          string        `yaml:"folder_id"`
	Endpoint          string        `yaml:"endpoint"`
	OperationEndpoint string        `yaml:"operation_endpoint"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PageDelay         time.Duration `yaml:"page_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	PagesCompany      int           `yaml:"pages_company"`
	PagesExecutive    int           `yaml:"pages_executive"`
	PagesMarket       int           `yaml:"pages_market"`
}

type ScraperConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	RateLimit     float64       `yaml:"rate_limit"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
}

type ProcessorConfig struct {
	ChunkSize  int           `yaml:"chunk_size"`
	CallDelay  time.Duration `yaml:"call_delay"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

type PathsConfig struct {
	OutputDir      string `yaml:"output_dir"`
	RegistryDir    string `yaml:"registry_dir"`
	FinancialsFile string `yaml:"financials_file"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/dossier/config.yaml"),
			"/etc/dossier/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "error reading config file %s", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, eris.Wrapf(err, "error parsing config file %s", path)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "googleai"
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Models.Clean == "" {
		config.LLM.Models.Clean = "gemini-1.5-flash-latest"
	}
	if config.LLM.Models.Relevance == "" {
		config.LLM.Models.Relevance = "gemini-1.5-flash-latest"
	}
	if config.LLM.Models.Summary == "" {
		config.LLM.Models.Summary = "gemini-2.5-pro"
	}
	if config.LLM.Models.Fusion == "" {
		config.LLM.Models.Fusion = "gemini-2.5-pro"
	}
	if config.LLM.Models.Market == "" {
		config.LLM.Models.Market = "gemini-1.5-flash-latest"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.FusionMaxTokens == 0 {
		config.LLM.FusionMaxTokens = 3000
	}

	if config.Search.Provider == "" {
		config.Search.Provider = "yandex"
	}
	if config.Search.Endpoint == "" {
		config.Search.Endpoint = "https://searchapi.api.cloud.yandex.net/v2/web/searchAsync"
	}
	if config.Search.OperationEndpoint == "" {
		config.Search.OperationEndpoint = "https://operation.api.cloud.yandex.net/operations"
	}
	if config.Search.PollInterval == 0 {
		config.Search.PollInterval = 15 * time.Second
	}
	if config.Search.Timeout == 0 {
		config.Search.Timeout = 30 * time.Second
	}
	if config.Search.PageDelay == 0 {
		config.Search.PageDelay = 2 * time.Second
	}
	if config.Search.PagesCompany == 0 {
		config.Search.PagesCompany = 1
	}
	if config.Search.PagesExecutive == 0 {
		config.Search.PagesExecutive = 1
	}
	if config.Search.PagesMarket == 0 {
		config.Search.PagesMarket = 1
	}

	if config.Scraper.MaxConcurrent == 0 {
		config.Scraper.MaxConcurrent = 5
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 20 * time.Second
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "Mozilla/5.0 (compatible; dossier/1.0)"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 10
	}
	if config.Processor.CallDelay == 0 {
		config.Processor.CallDelay = time.Second
	}
	if config.Processor.ChunkDelay == 0 {
		config.Processor.ChunkDelay = 2 * time.Second
	}

	if config.Paths.OutputDir == "" {
		config.Paths.OutputDir = "output"
	}
	if config.Paths.RegistryDir == "" {
		config.Paths.RegistryDir = filepath.Join("input", "egrul_json")
	}
	if config.Paths.FinancialsFile == "" {
		config.Paths.FinancialsFile = filepath.Join("input", "csv", "Output_updated.csv")
	}

	if len(config.Domains) == 0 {
		config.Domains = make(map[string]float64, len(policy.DefaultWeights))
		for d, w := range policy.DefaultWeights {
			config.Domains[d] = w
		}
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "summaries"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Ledger.Path == "" {
		config.Ledger.Path = filepath.Join(config.Paths.OutputDir, "ledger.db")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("GENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if token := os.Getenv("YC_IAM_TOKEN"); token != "" {
		config.Search.IAMToken = token
	}
	if folder := os.Getenv("YC_FOLDER_ID"); folder != "" {
		config.Search.FolderID = folder
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if out := os.Getenv("DOSSIER_OUTPUT_DIR"); out != "" {
		config.Paths.OutputDir = out
	}
}
