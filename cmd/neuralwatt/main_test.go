package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider/localmock"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

type cliEnv struct {
	srv   *localmock.Server
	logDB string
}

func newCLIEnv(t *testing.T, opts ...localmock.Option) *cliEnv {
	t.Helper()
	srv := localmock.New(opts...)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("NEURALWATT_API_KEY", "test-key")
	t.Setenv("NEURALWATT_BASE_URL", srv.BaseURL())
	t.Setenv("NEURALWATT_MODEL", "")

	return &cliEnv{srv: srv, logDB: filepath.Join(dir, "logs.db")}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-db", e.logDB))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// ═══════════════════════════════════════════════════════════════════════════
// prompt 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestPrompt_Stream(t *testing.T) {
	env := newCLIEnv(t, localmock.WithFragments("Hel", "lo"), localmock.WithWriteSize(4))

	stdout, stderr, err := env.run(t, "", "prompt", "say", "hello")

	require.NoError(t, err)
	assert.Equal(t, "Hello\n", stdout)
	assert.Contains(t, stderr, "Energy: 30.4200 J")

	call, ok := env.srv.LastCall()
	require.True(t, ok)
	assert.True(t, call.Stream())
	assert.Equal(t, "openai/gpt-oss-20b", call.Body["model"])
}

func TestPrompt_ModelAlias(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "prompt", "-m", "neuralwatt-qwen3-coder", "hi")

	require.NoError(t, err)
	call, _ := env.srv.LastCall()
	assert.Equal(t, "Qwen/Qwen3-Coder-480B-A35B-Instruct", call.Body["model"])
}

func TestPrompt_Stdin(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "  from stdin \n", "prompt")

	require.NoError(t, err)
	call, _ := env.srv.LastCall()
	msgs := call.Body["messages"].([]any)
	assert.Equal(t, "from stdin", msgs[len(msgs)-1].(map[string]any)["content"])
}

func TestPrompt_EmptyStdin(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "prompt")

	assert.EqualError(t, err, "no prompt given")
}

func TestPrompt_Async(t *testing.T) {
	env := newCLIEnv(t, localmock.WithFragments("a", "b", "c"), localmock.WithWriteSize(1))

	stdout, _, err := env.run(t, "", "prompt", "--async", "hi")

	require.NoError(t, err)
	assert.Equal(t, "abc\n", stdout)
}

func TestPrompt_NoStream(t *testing.T) {
	env := newCLIEnv(t, localmock.WithFragments("full ", "reply"))

	stdout, stderr, err := env.run(t, "", "prompt", "--no-stream", "--usage", "hi")

	require.NoError(t, err)
	assert.Equal(t, "full reply\n", stdout)
	assert.Contains(t, stderr, "Tokens: 10 in, 5 out, 15 total")
	assert.Contains(t, stderr, "Energy:")

	call, _ := env.srv.LastCall()
	assert.False(t, call.Stream())
}

func TestPrompt_NoStreamToolCalls(t *testing.T) {
	env := newCLIEnv(t,
		localmock.WithFragments(),
		localmock.WithToolCalls(map[string]any{
			"id":       "call_1",
			"function": map[string]any{"name": "get_weather", "arguments": `{"city":"Oslo"}`},
		}),
	)

	_, stderr, err := env.run(t, "", "prompt", "--no-stream", "weather?")

	require.NoError(t, err)
	assert.Contains(t, stderr, `Tool call: get_weather {"city":"Oslo"} (id call_1)`)
}

func TestPrompt_JSON(t *testing.T) {
	env := newCLIEnv(t, localmock.WithFragments("Hel", "lo"))

	stdout, _, err := env.run(t, "", "prompt", "--json", "hi")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "Hello", out["content"])
	energy, ok := out["energy"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 30.42, energy["energy_joules"], 1e-9)
}

func TestPrompt_NoEnergy(t *testing.T) {
	env := newCLIEnv(t, localmock.WithEnergy(nil))

	_, stderr, err := env.run(t, "", "prompt", "hi")

	require.NoError(t, err)
	assert.Contains(t, stderr, "Energy: not reported")
}

func TestPrompt_PartialEnergy(t *testing.T) {
	env := newCLIEnv(t, localmock.WithEnergy(map[string]any{"energy_joules": 2.0}))

	_, stderr, err := env.run(t, "", "prompt", "hi")

	require.NoError(t, err)
	assert.Contains(t, stderr, `Energy: {"energy_joules":2}`)
}

func TestPrompt_Strict(t *testing.T) {
	env := newCLIEnv(t, localmock.WithoutTerminator())

	stdout, stderr, err := env.run(t, "", "prompt", "hi")
	require.NoError(t, err)
	assert.Equal(t, "This is a mock response.\n", stdout)
	assert.Contains(t, stderr, "without [DONE]")

	_, _, err = env.run(t, "", "prompt", "--strict", "hi")
	assert.ErrorIs(t, err, errTruncated)
}

func TestPrompt_MalformedStream(t *testing.T) {
	env := newCLIEnv(t, localmock.WithRawLines("data: {not valid json"))

	_, _, err := env.run(t, "", "prompt", "hi")

	require.Error(t, err)
	assert.True(t, llm.IsMalformedChunk(err))
}

func TestPrompt_APIError(t *testing.T) {
	env := newCLIEnv(t, localmock.WithStatus(http.StatusUnauthorized, `{"error":"bad key"}`))

	_, _, err := env.run(t, "", "prompt", "hi")

	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, llm.GetStatusCode(err))
}

func TestPrompt_MissingAPIKey(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("NEURALWATT_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	_, _, err := env.run(t, "", "prompt", "hi")

	require.Error(t, err)
	assert.True(t, llm.IsConfigError(err))
	assert.Zero(t, env.srv.CallCount())
}

// ═══════════════════════════════════════════════════════════════════════════
// models / logs 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestModels(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "", "models")

	require.NoError(t, err)
	assert.Contains(t, stdout, "neuralwatt/gpt-oss-20b")
	assert.Contains(t, stdout, "openai/gpt-oss-20b")
	assert.Contains(t, stdout, "neuralwatt-qwen3-coder")
}

func TestLogs(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "prompt", "first prompt")
	require.NoError(t, err)
	_, _, err = env.run(t, "", "prompt", "--no-log", "secret prompt")
	require.NoError(t, err)

	stdout, _, err := env.run(t, "", "logs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "first prompt")
	assert.NotContains(t, stdout, "secret prompt")
	assert.Contains(t, stdout, "30.4200")

	stdout, _, err = env.run(t, "", "logs", "--total")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 requests, 1 with energy data, 30.4200 J")

	stdout, _, err = env.run(t, "", "logs", "--json")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)

	stdout, _, err = env.run(t, "", "logs", records[0]["id"].(string))
	require.NoError(t, err)
	assert.Contains(t, stdout, `"prompt": "first prompt"`)
}
