package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// 错误分类
// ═══════════════════════════════════════════════════════════════════════════

// ErrorType 错误类型
//
// 一次请求至多产生一个致命错误，类型说明它发生在哪一层：
//
//	配置 → 请求构建 → 传输 → HTTP 状态 → 线路解码 / 响应解析 → 流生命周期
type ErrorType string

const (
	ErrTypeConfig    ErrorType = "config_error"    // 缺少 API Key、注册表无效等
	ErrTypeRequest   ErrorType = "request_error"   // 请求体构建或序列化失败
	ErrTypeTransport ErrorType = "transport_error" // 连接失败或读取字节流失败
	ErrTypeAPI       ErrorType = "api_error"       // HTTP 状态码 >= 400
	ErrTypeResponse  ErrorType = "response_error"  // 非流式响应体或能耗字段无法解析
	ErrTypeStream    ErrorType = "stream_error"    // 流在完成前被关闭或取消

	// 线路解码错误，均由 [DecodeError] 承载
	ErrTypeMalformedChunk       ErrorType = "malformed_chunk"        // data: 行的 JSON 无效
	ErrTypeMalformedSideChannel ErrorType = "malformed_side_channel" // ": energy" 注释的 JSON 无效
	ErrTypeUnrecognizedLine     ErrorType = "unrecognized_line"      // 不属于任何已知语法的行
)

// BaseError 所有错误类型共享的字段
type BaseError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

func newBase(typ ErrorType, message string, err error) *BaseError {
	return &BaseError{Type: typ, Message: message, Err: err}
}

// ═══════════════════════════════════════════════════════════════════════════
// 客户端错误
// ═══════════════════════════════════════════════════════════════════════════

// ConfigError 配置错误
type ConfigError struct {
	*BaseError
}

// NewConfigError 创建配置错误
func NewConfigError(message string, err error) *ConfigError {
	return &ConfigError{newBase(ErrTypeConfig, message, err)}
}

// RequestError 请求构建错误，请求未发出
type RequestError struct {
	*BaseError
	Stage string // "build"、"marshal"
}

// NewRequestError 创建请求错误
func NewRequestError(stage string, err error) *RequestError {
	return &RequestError{
		BaseError: newBase(ErrTypeRequest, fmt.Sprintf("failed to %s request", stage), err),
		Stage:     stage,
	}
}

// TransportError 传输层错误
//
// 连接失败，或字节源在终止符之前读取失败。底层错误保留在错误链中。
type TransportError struct {
	*BaseError
}

// NewTransportError 创建传输错误
func NewTransportError(message string, err error) *TransportError {
	return &TransportError{newBase(ErrTypeTransport, message, err)}
}

// ResponseError 响应解析错误
type ResponseError struct {
	*BaseError
	Field string // 出错的字段路径，如 "energy.energy_joules"
}

// NewResponseError 创建响应错误
func NewResponseError(field string, err error) *ResponseError {
	return &ResponseError{
		BaseError: newBase(ErrTypeResponse, fmt.Sprintf("failed to parse response field '%s'", field), err),
		Field:     field,
	}
}

// StreamError 流生命周期错误
//
// 调用方在终止之前关闭或取消流时产生，部分聚合结果已被丢弃。
type StreamError struct {
	*BaseError
}

// NewStreamError 创建流式错误
func NewStreamError(message string, err error) *StreamError {
	return &StreamError{newBase(ErrTypeStream, message, err)}
}

// ═══════════════════════════════════════════════════════════════════════════
// API 错误
// ═══════════════════════════════════════════════════════════════════════════

// APIError HTTP 错误状态
//
// Response 为原始响应体；ErrorCode 取自 OpenAI 风格错误体的 error.code。
type APIError struct {
	*BaseError
	StatusCode int
	Response   string
	Provider   string
	RequestID  string
	ErrorCode  string
}

// NewAPIError 创建 API 错误
func NewAPIError(statusCode int, response string) *APIError {
	return &APIError{
		BaseError:  newBase(ErrTypeAPI, fmt.Sprintf("API returned error status %d", statusCode), nil),
		StatusCode: statusCode,
		Response:   response,
	}
}

// WithProvider 设置 Provider 名称
func (e *APIError) WithProvider(provider string) *APIError {
	e.Provider = provider
	return e
}

// WithRequestID 设置请求 ID（X-Request-ID 响应头）
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

// WithErrorCode 设置错误代码
func (e *APIError) WithErrorCode(code string) *APIError {
	e.ErrorCode = code
	return e
}

func (e *APIError) Error() string {
	var details []string
	if e.ErrorCode != "" {
		details = append(details, "code: "+e.ErrorCode)
	}
	if e.RequestID != "" {
		details = append(details, "request_id: "+e.RequestID)
	}
	if len(details) == 0 {
		return e.BaseError.Error()
	}
	return fmt.Sprintf("%s (%s)", e.BaseError.Error(), strings.Join(details, ", "))
}

// IsRetryable 429 与 500-504 可重试
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500 && e.StatusCode <= 504
}

// ═══════════════════════════════════════════════════════════════════════════
// 解码错误
// ═══════════════════════════════════════════════════════════════════════════

// DecodeError SSE 解码错误
//
// Type 区分三种情况：ErrTypeMalformedChunk、ErrTypeMalformedSideChannel、
// ErrTypeUnrecognizedLine。LineNo 从 1 开始计数。
type DecodeError struct {
	*BaseError
	Line   string
	LineNo int
}

func newDecodeError(typ ErrorType, message string, line string, lineNo int, err error) *DecodeError {
	return &DecodeError{
		BaseError: newBase(typ, fmt.Sprintf("%s at line %d", message, lineNo), err),
		Line:      line,
		LineNo:    lineNo,
	}
}

// NewMalformedChunkError 创建 data: 行解析错误
func NewMalformedChunkError(line string, lineNo int, err error) *DecodeError {
	return newDecodeError(ErrTypeMalformedChunk, "invalid JSON in data line", line, lineNo, err)
}

// NewMalformedSideChannelError 创建侧信道解析错误
func NewMalformedSideChannelError(line string, lineNo int, err error) *DecodeError {
	return newDecodeError(ErrTypeMalformedSideChannel, "invalid JSON in energy comment", line, lineNo, err)
}

// NewUnrecognizedLineError 创建无法识别的行错误
func NewUnrecognizedLineError(line string, lineNo int) *DecodeError {
	return newDecodeError(ErrTypeUnrecognizedLine, "unrecognized line", line, lineNo, nil)
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误匹配（基于 errors.As，包装后仍可匹配）
// ═══════════════════════════════════════════════════════════════════════════

func as[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func is[T error](err error) bool {
	_, ok := as[T](err)
	return ok
}

func IsConfigError(err error) bool    { return is[*ConfigError](err) }
func IsRequestError(err error) bool   { return is[*RequestError](err) }
func IsTransportError(err error) bool { return is[*TransportError](err) }
func IsAPIError(err error) bool       { return is[*APIError](err) }
func IsResponseError(err error) bool  { return is[*ResponseError](err) }
func IsStreamError(err error) bool    { return is[*StreamError](err) }

// IsDecodeError 任意一种线路解码错误
func IsDecodeError(err error) bool { return is[*DecodeError](err) }

func IsMalformedChunk(err error) bool       { return isDecodeType(err, ErrTypeMalformedChunk) }
func IsMalformedSideChannel(err error) bool { return isDecodeType(err, ErrTypeMalformedSideChannel) }
func IsUnrecognizedLine(err error) bool     { return isDecodeType(err, ErrTypeUnrecognizedLine) }

func isDecodeType(err error, typ ErrorType) bool {
	e, ok := as[*DecodeError](err)
	return ok && e.Type == typ
}

// IsRetryableError 是否为可重试的 API 错误
//
// 解码与传输错误不重试：已转发给调用方的文本无法撤回。
func IsRetryableError(err error) bool {
	e, ok := as[*APIError](err)
	return ok && e.IsRetryable()
}

// GetAPIError 提取 APIError
func GetAPIError(err error) (*APIError, bool) {
	return as[*APIError](err)
}

// GetStatusCode API 错误的 HTTP 状态码，其他错误返回 0
func GetStatusCode(err error) int {
	if e, ok := GetAPIError(err); ok {
		return e.StatusCode
	}
	return 0
}
