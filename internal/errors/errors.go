package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，决定日志级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeConfiguration    Code = "CONFIGURATION"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotInitialized   Code = "NOT_INITIALIZED"
	CodeWalletFailure    Code = "WALLET_FAILURE"
	CodeAgentFailure     Code = "AGENT_FAILURE"
	CodeToolFailure      Code = "TOOL_FAILURE"
	CodeMaxTurnsExceeded Code = "MAX_TURNS_EXCEEDED"
	CodeStorageFailure   Code = "STORAGE_FAILURE"
	CodePublishFailure   Code = "PUBLISH_FAILURE"
	CodeUpstreamFailure  Code = "UPSTREAM_FAILURE"
	CodeTimeout          Code = "TIMEOUT"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:          {Message: "unknown error", Severity: SeverityCritical},
		CodeConfiguration:    {Message: "invalid configuration", Severity: SeverityCritical},
		CodeInvalidArgument:  {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotInitialized:   {Message: "agent not initialized", Severity: SeverityWarning, Retryable: true},
		CodeWalletFailure:    {Message: "wallet provider failure", Severity: SeverityCritical, Retryable: true},
		CodeAgentFailure:     {Message: "agent run failed", Severity: SeverityWarning, Retryable: true},
		CodeToolFailure:      {Message: "tool invocation failed", Severity: SeverityInfo},
		CodeMaxTurnsExceeded: {Message: "max turns exceeded", Severity: SeverityWarning},
		CodeStorageFailure:   {Message: "storage failure", Severity: SeverityCritical, Retryable: true},
		CodePublishFailure:   {Message: "event publish failure", Severity: SeverityWarning, Retryable: true},
		CodeUpstreamFailure:  {Message: "upstream service failure", Severity: SeverityWarning, Retryable: true},
		CodeTimeout:          {Message: "operation timed out", Severity: SeverityWarning, Retryable: true},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf 与 New 相同，但支持格式化消息。
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。错误码不出现在文本中，文本会原样返回给客户端。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含原因的错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Retryable
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Severity
	}
	return AttributesOf(CodeUnknown).Severity
}
