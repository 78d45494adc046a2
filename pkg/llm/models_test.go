package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════
// 模型注册表测试
// ═══════════════════════════════════════════════════════════════════════════

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	models := r.Models()
	require.Len(t, models, 3)
	assert.Equal(t, "neuralwatt/deepseek-coder-33b-instruct", models[0].ID)
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		input    string
		wantID   string
		wantName string
	}{
		{"按 ID", "neuralwatt/gpt-oss-20b", "neuralwatt/gpt-oss-20b", "openai/gpt-oss-20b"},
		{"按别名", "neuralwatt-gpt-oss", "neuralwatt/gpt-oss-20b", "openai/gpt-oss-20b"},
		{"按上游名称", "Qwen/Qwen3-Coder-480B-A35B-Instruct", "neuralwatt/Qwen3-Coder-480B-A35B-Instruct", "Qwen/Qwen3-Coder-480B-A35B-Instruct"},
		{"DeepSeek 别名", "neuralwatt-deepseek-coder", "neuralwatt/deepseek-coder-33b-instruct", "deepseek-ai/deepseek-coder-33b-instruct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.Resolve(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, m.ID)
			assert.Equal(t, tt.wantName, m.Name)
		})
	}

	_, ok := r.Resolve("unknown-model")
	assert.False(t, ok)
}

func TestRegistry_UpstreamName(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, "openai/gpt-oss-20b", r.UpstreamName("neuralwatt-gpt-oss"))
	assert.Equal(t, "some/new-model", r.UpstreamName("some/new-model"))
}

func TestLoadRegistry_Errors(t *testing.T) {
	t.Run("无效 YAML", func(t *testing.T) {
		_, err := LoadRegistry([]byte("models: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("缺少 ID", func(t *testing.T) {
		_, err := LoadRegistry([]byte("models:\n  - name: x\n"))
		assert.True(t, IsConfigError(err))
	})

	t.Run("别名重复", func(t *testing.T) {
		data := []byte(`
models:
  - id: a
    aliases: [short]
  - id: b
    aliases: [short]
`)
		_, err := LoadRegistry(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "short")
	})
}

func TestLoadRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - id: local/m\n"), 0o600))

	r, err := LoadRegistryFile(path)
	require.NoError(t, err)

	m, ok := r.Resolve("local/m")
	require.True(t, ok)
	assert.Equal(t, "local/m", m.Name, "name defaults to id")

	_, err = LoadRegistryFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistry_ModelsIsCopy(t *testing.T) {
	r := DefaultRegistry()

	models := r.Models()
	models[0].Aliases[0] = "mutated"

	_, ok := r.Resolve("neuralwatt-deepseek-coder")
	assert.True(t, ok)
}
