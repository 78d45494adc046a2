package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider/localmock"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// New 函数测试
// ═══════════════════════════════════════════════════════════════════════════

func TestNew_NilConfig(t *testing.T) {
	p, err := New(nil)

	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, llm.IsConfigError(err))
}

func TestNew_MissingAPIKey(t *testing.T) {
	p, err := New(&llm.Config{Model: "neuralwatt-gpt-oss"})

	assert.Nil(t, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNew_ResolvesAlias(t *testing.T) {
	srv := localmock.New(localmock.WithFragments("ok"))
	defer srv.Close()

	p, err := New(&llm.Config{
		APIKey:  "test-key",
		BaseURL: srv.BaseURL(),
		Model:   "neuralwatt-deepseek-coder",
	}, WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	resp, err := p.Complete(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	call, ok := srv.LastCall()
	require.True(t, ok)
	assert.Equal(t, "deepseek-ai/deepseek-coder-33b-instruct", call.Body["model"])
}

func TestNew_DefaultModel(t *testing.T) {
	srv := localmock.New()
	defer srv.Close()

	p, err := New(&llm.Config{APIKey: "k", BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil)
	require.NoError(t, err)

	call, _ := srv.LastCall()
	assert.Equal(t, "openai/gpt-oss-20b", call.Body["model"])
}

func TestNew_CustomRegistry(t *testing.T) {
	reg, err := llm.LoadRegistry([]byte("models:\n  - id: local/x\n    name: upstream/x\n    aliases: [x]\n"))
	require.NoError(t, err)

	p, err := New(&llm.Config{APIKey: "k", Model: "x"}, WithRegistry(reg))
	require.NoError(t, err)

	assert.Same(t, reg, p.Registry())
}

// ═══════════════════════════════════════════════════════════════════════════
// 便捷函数测试
// ═══════════════════════════════════════════════════════════════════════════

func TestMust_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Must(&llm.Config{})
	})
}

func TestDefault_FromEnv(t *testing.T) {
	t.Setenv("NEURALWATT_API_KEY", "env-key")
	t.Setenv("NEURALWATT_BASE_URL", "http://127.0.0.1:1/v1")

	p, err := Default()

	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestDefault_MissingKey(t *testing.T) {
	t.Setenv("NEURALWATT_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	_, err := Default()

	assert.True(t, llm.IsConfigError(err))
}
