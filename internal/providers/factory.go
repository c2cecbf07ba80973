package providers

import (
	"fmt"
	"os"

	"github.com/tunacode-sh/tunacode/internal/streamfn"
)

// NewStreamFnFromEnv builds a streamfn.StreamFn plus the model name to use,
// selected by the LLM_PROVIDER environment variable.
//
// GROUNDED on the teacher's providers/factory.go NewLLMClientFromEnv: same
// provider roster and env-var names, retargeted to construct OpenAIStream /
// AnthropicStream instead of the old engine.LLMClient.
func NewStreamFnFromEnv() (streamfn.StreamFn, string, error) {
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
		return NewOpenAIStream(apiKey, os.Getenv("OPENAI_BASE_URL")), model, nil

	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := envOr("ANTHROPIC_MODEL", "claude-3-sonnet-20240229")
		return NewAnthropicStream(apiKey), model, nil

	case "kimi":
		apiKey := os.Getenv("KIMI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("KIMI_API_KEY not set")
		}
		model := envOr("KIMI_MODEL", "kimi-k2-250711")
		baseURL := envOr("KIMI_BASE_URL", "https://ark.ap-southeast.bytepluses.com/api/v3")
		return NewOpenAIStream(apiKey, baseURL), model, nil

	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY not set")
		}
		model := envOr("GEMINI_MODEL", "gemini-1.5-flash")
		return NewOpenAIStream(apiKey, "https://generativelanguage.googleapis.com/v1beta/openai"), model, nil

	case "lmstudio":
		baseURL := envOr("LMSTUDIO_BASE_URL", "http://localhost:1234/v1")
		model := envOr("LMSTUDIO_MODEL", "local-model")
		apiKey := envOr("LMSTUDIO_API_KEY", "lm-studio")
		return NewOpenAIStream(apiKey, baseURL), model, nil

	case "ollama":
		baseURL := envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1")
		model := envOr("OLLAMA_MODEL", "llama3.1")
		apiKey := envOr("OLLAMA_API_KEY", "ollama")
		return NewOpenAIStream(apiKey, baseURL), model, nil

	case "glm":
		apiKey := os.Getenv("GLM_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GLM_API_KEY not set")
		}
		model := envOr("GLM_MODEL", "glm-4-plus")
		return NewOpenAIStream(apiKey, "https://open.bigmodel.cn/api/paas/v4"), model, nil

	case "minimax":
		apiKey := os.Getenv("MINIMAX_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("MINIMAX_API_KEY not set")
		}
		model := envOr("MINIMAX_MODEL", "abab6.5s-chat")
		return NewOpenAIStream(apiKey, "https://api.minimax.chat/v1"), model, nil

	case "deepseek":
		apiKey := os.Getenv("DEEPSEEK_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("DEEPSEEK_API_KEY not set")
		}
		model := envOr("DEEPSEEK_MODEL", "deepseek-chat")
		return NewOpenAIStream(apiKey, "https://api.deepseek.com/v1"), model, nil

	case "groq":
		apiKey := os.Getenv("GROQ_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GROQ_API_KEY not set")
		}
		model := envOr("GROQ_MODEL", "llama-3.1-70b-versatile")
		return NewOpenAIStream(apiKey, "https://api.groq.com/openai/v1"), model, nil

	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: openai, anthropic, kimi, gemini, lmstudio, ollama, glm, minimax, deepseek, groq)", provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
