package localmock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// CallRecord 记录一次请求的详情
type CallRecord struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
	Time   time.Time
}

// Stream 请求是否为流式
func (r CallRecord) Stream() bool {
	stream, _ := r.Body["stream"].(bool)
	return stream
}

// ═══════════════════════════════════════════════════════════════════════════
// Server - 本地 SSE 服务
// ═══════════════════════════════════════════════════════════════════════════

// Server 本地 Neuralwatt 兼容服务
//
// 在 /chat/completions 上按 [Script] 返回流式或非流式响应，供测试与离线演示使用：
//
//	srv := localmock.New(localmock.WithFragments("Hel", "lo"))
//	defer srv.Close()
//
//	client, _ := neuralwatt.New(&neuralwatt.Config{APIKey: "test", BaseURL: srv.BaseURL()})
type Server struct {
	*httptest.Server

	mu        sync.RWMutex
	script    Script
	status    int
	errBody   string
	requestID string
	rawBody   string
	writeSize int
	delay     time.Duration
	calls     []CallRecord
}

// Option 配置选项函数
type Option func(*Server)

// WithScript 设置完整响应脚本
func WithScript(s Script) Option {
	return func(srv *Server) {
		srv.script = s
	}
}

// WithFragments 设置文本片段
func WithFragments(fragments ...string) Option {
	return func(srv *Server) {
		srv.script.Fragments = fragments
	}
}

// WithEnergy 设置能耗注释内容，nil 表示不输出
func WithEnergy(energy map[string]any) Option {
	return func(srv *Server) {
		srv.script.Energy = energy
	}
}

// WithComments 在片段之间插入注释行（如 "keep-alive"）
func WithComments(comments ...string) Option {
	return func(srv *Server) {
		srv.script.Comments = comments
	}
}

// WithRawLines 在能耗注释之前写入原始行
func WithRawLines(lines ...string) Option {
	return func(srv *Server) {
		srv.script.Raw = lines
	}
}

// WithoutTerminator 不输出终止符，模拟截断的连接
func WithoutTerminator() Option {
	return func(srv *Server) {
		srv.script.NoTerminator = true
	}
}

// WithWriteSize 每次写入并刷新的字节数，0 表示一次写完
func WithWriteSize(n int) Option {
	return func(srv *Server) {
		srv.writeSize = n
	}
}

// WithDelay 每次写入之前的延迟
func WithDelay(d time.Duration) Option {
	return func(srv *Server) {
		srv.delay = d
	}
}

// WithToolCalls 设置非流式响应中的工具调用
//
// 每一项为 OpenAI 格式的 tool_call 对象，如：
//
//	{"id": "call_1", "type": "function", "function": {"name": "f", "arguments": "{}"}}
func WithToolCalls(calls ...map[string]any) Option {
	return func(srv *Server) {
		srv.script.ToolCalls = calls
	}
}

// WithCompletionBody 非流式请求原样返回 body（状态码 200），用于构造无法解析的响应
func WithCompletionBody(body string) Option {
	return func(srv *Server) {
		srv.rawBody = body
	}
}

// WithStatus 返回错误状态码与响应体
func WithStatus(code int, body string) Option {
	return func(srv *Server) {
		srv.status = code
		srv.errBody = body
	}
}

// WithRequestID 设置 X-Request-ID 响应头
func WithRequestID(id string) Option {
	return func(srv *Server) {
		srv.requestID = id
	}
}

// New 创建并启动本地服务
func New(opts ...Option) *Server {
	srv := &Server{script: DefaultScript()}
	for _, opt := range opts {
		opt(srv)
	}
	srv.Server = httptest.NewServer(http.HandlerFunc(srv.handle))
	return srv
}

// BaseURL 客户端使用的 API 基础地址
func (s *Server) BaseURL() string {
	return s.URL + "/v1"
}

// Calls 返回所有请求记录
func (s *Server) Calls() []CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CallRecord, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount 请求次数
func (s *Server) CallCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// LastCall 最后一次请求，无请求时 ok 为 false
func (s *Server) LastCall() (CallRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.calls) == 0 {
		return CallRecord{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// Reset 清空请求记录
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// ═══════════════════════════════════════════════════════════════════════════
// HTTP 处理
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":{"message":"invalid JSON body"}}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	call := CallRecord{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
		Time:   time.Now(),
	}
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	if s.requestID != "" {
		w.Header().Set("X-Request-ID", s.requestID)
	}

	if s.status >= 400 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.errBody))
		return
	}

	if call.Stream() {
		s.writeStream(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if s.rawBody != "" {
		_, _ = w.Write([]byte(s.rawBody))
		return
	}
	_ = json.NewEncoder(w).Encode(s.script.Completion())
}

func (s *Server) writeStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	data := s.script.Bytes()

	size := s.writeSize
	if size <= 0 {
		size = len(data)
	}

	for len(data) > 0 {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}

		n := min(size, len(data))
		if _, err := w.Write(data[:n]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		data = data[n:]
	}
}
