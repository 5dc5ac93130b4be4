package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
)

func TestCheckEmbeddingDimensions(t *testing.T) {
	t.Run("matching model passes", func(t *testing.T) {
		profiles := []domain.ProviderProfile{
			{ProviderID: "openai", ModelID: "text-embedding-3-small"},
		}
		assert.NoError(t, checkEmbeddingDimensions(profiles, 1536))
	})

	t.Run("mismatched model refuses start", func(t *testing.T) {
		profiles := []domain.ProviderProfile{
			{ProviderID: "gemini", ModelID: "text-embedding-004"},
		}
		err := checkEmbeddingDimensions(profiles, 1536)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "text-embedding-004")
		assert.Contains(t, err.Error(), "768")
		assert.Contains(t, err.Error(), "1536")
	})

	t.Run("unknown model is trusted", func(t *testing.T) {
		profiles := []domain.ProviderProfile{
			{ProviderID: "selfhosted", ModelID: "bge-large-en"},
		}
		assert.NoError(t, checkEmbeddingDimensions(profiles, 1024))
	})

	t.Run("no profiles passes", func(t *testing.T) {
		assert.NoError(t, checkEmbeddingDimensions(nil, 1536))
	})

	t.Run("first mismatch wins across profiles", func(t *testing.T) {
		profiles := []domain.ProviderProfile{
			{ProviderID: "openai", ModelID: "text-embedding-3-small"},
			{ProviderID: "gemini", ModelID: "text-embedding-004"},
		}
		err := checkEmbeddingDimensions(profiles, 1536)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "text-embedding-004")
	})
}
