package providers

import (
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

// NewClientFromEnv builds an llmcall.Client from environment variables,
// switching on LLM_PROVIDER to pick the concrete client. It returns the
// client together with the default model name to use when a skill does not
// pin one explicitly.
func NewClientFromEnv() (llmcall.Client, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		model := envOr("OPENAI_MODEL", "gpt-4o-mini")
		return NewOpenAIClient(apiKey, os.Getenv("OPENAI_BASE_URL")), model, nil

	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
		return NewAnthropicClient(apiKey), model, nil

	case "kimi":
		// Kimi uses an OpenAI-compatible API via BytePlus ModelArk.
		apiKey := os.Getenv("KIMI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("KIMI_API_KEY not set")
		}
		model := envOr("KIMI_MODEL", "kimi-k2-250711")
		baseURL := envOr("KIMI_BASE_URL", "https://ark.ap-southeast.bytepluses.com/api/v3")
		return NewOpenAIClient(apiKey, baseURL), model, nil

	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY not set")
		}
		model := envOr("GEMINI_MODEL", "gemini-1.5-flash")
		return NewOpenAIClient(apiKey, "https://generativelanguage.googleapis.com/v1beta/openai"), model, nil

	case "lmstudio":
		baseURL := envOr("LMSTUDIO_BASE_URL", "http://localhost:1234/v1")
		model := envOr("LMSTUDIO_MODEL", "local-model")
		apiKey := envOr("LMSTUDIO_API_KEY", "lm-studio")
		return NewOpenAIClient(apiKey, baseURL), model, nil

	case "ollama":
		baseURL := envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1")
		model := envOr("OLLAMA_MODEL", "llama3.1")
		apiKey := envOr("OLLAMA_API_KEY", "ollama")
		return NewOpenAIClient(apiKey, baseURL), model, nil

	case "deepseek":
		apiKey := os.Getenv("DEEPSEEK_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("DEEPSEEK_API_KEY not set")
		}
		model := envOr("DEEPSEEK_MODEL", "deepseek-chat")
		return NewOpenAIClient(apiKey, "https://api.deepseek.com/v1"), model, nil

	case "groq":
		apiKey := os.Getenv("GROQ_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GROQ_API_KEY not set")
		}
		model := envOr("GROQ_MODEL", "llama-3.1-70b-versatile")
		return NewOpenAIClient(apiKey, "https://api.groq.com/openai/v1"), model, nil

	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: openai, anthropic, kimi, gemini, lmstudio, ollama, deepseek, groq)", provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
