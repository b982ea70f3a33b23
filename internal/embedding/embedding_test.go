package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqi-advisory/internal/config"
)

func TestNewEmbedderProviders(t *testing.T) {
	e, err := NewEmbedder(&config.LLMConfig{Provider: config.ProviderOllama, BaseURL: "http://localhost:11434", Model: "all-minilm"})
	require.NoError(t, err)
	assert.NotNil(t, e)

	e, err = NewEmbedder(&config.LLMConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small", Key: "Bearer sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.LLMConfig{Provider: "huggingface"})
	assert.ErrorContains(t, err, "unknown embedding provider")
}
