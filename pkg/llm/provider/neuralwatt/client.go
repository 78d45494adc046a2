package neuralwatt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/core"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/protocol/openai"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/logger"
)

// providerName 错误与日志中的 Provider 标识
const providerName = "neuralwatt"

const chatEndpoint = "/chat/completions"

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// APIKey API 密钥（必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://api.neuralwatt.com/v1
	BaseURL string

	// Model 默认模型，可以是注册表 ID、别名或上游名称
	Model string

	// Timeout 请求超时时间，默认 120 秒
	//
	// 对流式请求而言是整个流的读取时限。
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string

	// Logger 日志记录器，默认丢弃
	Logger *log.Logger

	// Registry 模型注册表，默认使用内嵌注册表
	Registry *llm.Registry
}

// Client Neuralwatt LLM 客户端
//
// 实现 [llm.Provider] 接口。流式响应中的 ": energy {...}" 注释被捕获到
// [llm.Response.Energy]，非流式响应体中的 "energy" 字段同样保留。
//
// Client 是并发安全的，每次请求使用独立的解码器与聚合器。
type Client struct {
	config   *Config
	resty    *resty.Client
	adapter  *openai.Adapter
	registry *llm.Registry
	logger   *log.Logger
}

// New 创建 Neuralwatt 客户端
func New(config *Config) (*Client, error) {
	if config == nil {
		return nil, llm.NewConfigError("config is required", nil)
	}
	if config.APIKey == "" {
		return nil, llm.NewConfigError("API key is required", nil)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = llm.DefaultBaseURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = llm.DefaultTimeout
	}

	registry := config.Registry
	if registry == nil {
		registry = llm.DefaultRegistry()
	}

	lg := config.Logger
	if lg == nil {
		lg = logger.Nop()
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	maps.Copy(headers, config.Headers)

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(timeout)
	r.SetAuthToken(config.APIKey)
	r.SetHeaders(headers)

	return &Client{
		config:   config,
		resty:    r,
		adapter:  openai.NewAdapter(),
		registry: registry,
		logger:   lg.With("provider", providerName),
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Complete 同步完成
//
// 实现 [llm.Provider] 接口。发送非流式请求并等待完整响应。
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	body, model, err := c.encodeRequest(messages, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		Post(chatEndpoint)
	if err != nil {
		return nil, llm.NewTransportError("request failed", err)
	}

	if resp.StatusCode() >= 400 {
		return nil, c.apiError(resp, resp.Body())
	}

	var apiResp map[string]any
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, llm.NewResponseError("body", err)
	}
	if apiResp == nil {
		return nil, llm.NewResponseError("body", errors.New("expected JSON object, got null"))
	}

	result, err := c.adapter.ParseResponse(apiResp)
	if err != nil {
		return nil, err
	}
	if result.Model == "" {
		result.Model = model
	}

	c.logger.Debug("completion finished",
		"model", result.Model,
		"tool_calls", len(result.ToolCalls),
		"energy", result.HasEnergy())
	return result, nil
}

// Stream 流式完成
//
// 实现 [llm.Provider] 接口，返回的流为 [*core.Stream]。
func (c *Client) Stream(ctx context.Context, messages []llm.Message, opts *llm.Options) (llm.ResponseStream, error) {
	return c.OpenStream(ctx, messages, opts)
}

// OpenStream 发送流式请求并返回同步流
//
//	stream, err := client.OpenStream(ctx, messages, nil)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Print(stream.Text())
//	}
//	resp, err := stream.Response()
func (c *Client) OpenStream(ctx context.Context, messages []llm.Message, opts *llm.Options) (*core.Stream, error) {
	body, err := c.openStream(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return core.NewStream(body, openai.NewChunkHandler(), core.WithLogger(c.logger)), nil
}

// StreamAsync 发送流式请求并返回异步流
//
// ctx 同时控制请求与流的消费，取消后字节源被关闭。
func (c *Client) StreamAsync(ctx context.Context, messages []llm.Message, opts *llm.Options) (*core.AsyncStream, error) {
	body, err := c.openStream(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return core.NewAsyncStream(ctx, body, openai.NewChunkHandler(), core.WithLogger(c.logger)), nil
}

// Close 关闭客户端
//
// 实现 [llm.Provider] 接口。HTTP 客户端无需显式关闭。
func (c *Client) Close() error {
	return nil
}

// Registry 客户端使用的模型注册表
func (c *Client) Registry() *llm.Registry {
	return c.registry
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求
// ═══════════════════════════════════════════════════════════════════════════

// openStream 发送流式请求，返回未解析的响应体
func (c *Client) openStream(ctx context.Context, messages []llm.Message, opts *llm.Options) (io.ReadCloser, error) {
	body, model, err := c.encodeRequest(messages, opts, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Post(chatEndpoint)
	if err != nil {
		return nil, llm.NewTransportError("request failed", err)
	}

	raw := resp.RawBody()
	if resp.StatusCode() >= 400 {
		defer func() { _ = raw.Close() }()
		data, _ := io.ReadAll(io.LimitReader(raw, maxErrorBody))
		return nil, c.apiError(resp, data)
	}

	c.logger.Debug("stream opened", "model", model, "status", resp.StatusCode())
	return raw, nil
}

// encodeRequest 构建并序列化请求体，同时返回发送的上游模型名称
func (c *Client) encodeRequest(messages []llm.Message, opts *llm.Options, stream bool) ([]byte, string, error) {
	if len(messages) == 0 {
		return nil, "", llm.NewRequestError("build", errors.New("at least one message is required"))
	}

	req := c.buildRequest(messages, opts, stream)
	data, err := json.Marshal(req)
	if err != nil {
		return nil, "", llm.NewRequestError("marshal request", err)
	}
	model, _ := req["model"].(string)
	return data, model, nil
}

// buildRequest 构建 API 请求体
func (c *Client) buildRequest(messages []llm.Message, opts *llm.Options, stream bool) map[string]any {
	if opts == nil {
		opts = &llm.Options{}
	}

	model := c.config.Model
	if model == "" {
		model = llm.DefaultModel
	}

	req := map[string]any{
		"model":    c.registry.UpstreamName(model),
		"messages": c.adapter.BuildMessages(messages, opts.System),
		"stream":   stream,
	}

	if opts.MaxTokens > 0 {
		req["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req["temperature"] = *opts.Temperature
	}
	if opts.TopP > 0 {
		req["top_p"] = opts.TopP
	}
	if opts.FrequencyPenalty != 0 {
		req["frequency_penalty"] = opts.FrequencyPenalty
	}
	if opts.PresencePenalty != 0 {
		req["presence_penalty"] = opts.PresencePenalty
	}
	if len(opts.StopSequences) > 0 {
		req["stop"] = opts.StopSequences
	}
	if stream && opts.IncludeUsage {
		req["stream_options"] = map[string]any{"include_usage": true}
	}

	// 扩展字段不覆盖已有字段
	for k, v := range opts.Extra {
		if _, exists := req[k]; !exists {
			req[k] = v
		}
	}

	return req
}

// apiError 将错误状态码转换为 [llm.APIError]
//
// OpenAI 风格的错误体 {"error": {"code": ..., "type": ..., "message": ...}}
// 中的 code（缺失时用 type）与 message 会被提取；其他格式只保留原始响应体。
func (c *Client) apiError(resp *resty.Response, body []byte) error {
	apiErr := llm.NewAPIError(resp.StatusCode(), string(body)).WithProvider(providerName)
	if requestID := resp.Header().Get("X-Request-ID"); requestID != "" {
		apiErr = apiErr.WithRequestID(requestID)
	}

	code, message := parseErrorBody(body)
	if code != "" {
		apiErr = apiErr.WithErrorCode(code)
	}
	if message != "" {
		apiErr.Message += ": " + message
	}

	c.logger.Debug("api error",
		"status", resp.StatusCode(),
		"code", apiErr.ErrorCode,
		"request_id", apiErr.RequestID)
	return apiErr
}

// parseErrorBody 提取错误体中的错误代码与描述
func parseErrorBody(body []byte) (code, message string) {
	var payload map[string]any
	if json.Unmarshal(body, &payload) != nil {
		return "", ""
	}

	detail := core.GetMap(payload["error"])
	if detail == nil {
		return "", ""
	}

	switch v := detail["code"].(type) {
	case string:
		code = v
	case float64:
		code = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if code == "" {
		code = core.GetString(detail["type"])
	}
	return code, core.GetString(detail["message"])
}

// 确保 Client 实现了 llm.Provider 接口
var _ llm.Provider = (*Client)(nil)
