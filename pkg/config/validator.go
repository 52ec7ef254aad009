package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "googleai":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "api key is required for googleai (set GENAI_API_KEY)",
			})
		}
	case "ollama":
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q, expected googleai or ollama", c.LLM.Provider),
		})
	}

	if c.LLM.CallDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.call_delay",
			Message: "call_delay must not be negative",
		})
	}

	if c.LLM.FusionMaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.fusion_max_tokens",
			Message: "fusion_max_tokens must be positive",
		})
	}

	// Validate Search config
	switch c.Search.Provider {
	case "yandex":
		if c.Search.IAMToken == "" || c.Search.FolderID == "" {
			errors = append(errors, ValidationError{
				Field:   "search.iam_token",
				Message: "yandex search needs iam_token and folder_id (set YC_IAM_TOKEN and YC_FOLDER_ID)",
			})
		}
	case "duckduckgo":
	default:
		errors = append(errors, ValidationError{
			Field:   "search.provider",
			Message: fmt.Sprintf("unknown provider %q, expected yandex or duckduckgo", c.Search.Provider),
		})
	}

	if c.Search.PageDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "search.page_delay",
			Message: "page_delay must not be negative",
		})
	}

	for field, pages := range map[string]int{
		"search.pages_company":   c.Search.PagesCompany,
		"search.pages_executive": c.Search.PagesExecutive,
		"search.pages_market":    c.Search.PagesMarket,
	} {
		if pages < 1 {
			errors = append(errors, ValidationError{Field: field, Message: "pages must be positive"})
		}
	}

	// Validate Scraper config
	if c.Scraper.MaxConcurrent < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_concurrent",
			Message: "max_concurrent must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.CallDelay < 0 || c.Processor.ChunkDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "processor.call_delay",
			Message: "delays must not be negative",
		})
	}

	for domain, w := range c.Domains {
		if w < 0 || w > 1 {
			errors = append(errors, ValidationError{
				Field:   "domains." + domain,
				Message: "weight must be between 0 and 1",
			})
		}
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
		if c.Database.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "database.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	}

	if c.Paths.OutputDir == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.output_dir",
			Message: "output_dir is required",
		})
	}

	return errors
}
