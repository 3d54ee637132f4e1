package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable 表示没有配置云端补全能力。
var ErrUnavailable = errors.New("completion capability unavailable")

// ErrorKind 是云端补全失败的分类，只用于日志与指标。
type ErrorKind string

const (
	KindNoCredentials ErrorKind = "no_credentials"
	KindAccessDenied  ErrorKind = "access_denied"
	KindTransient     ErrorKind = "transient"
	KindMalformed     ErrorKind = "malformed"
	KindOther         ErrorKind = "other"
)

// CompletionError 携带失败分类的补全错误。
type CompletionError struct {
	Kind ErrorKind
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func completionErr(kind ErrorKind, err error) error {
	return &CompletionError{Kind: kind, Err: err}
}

// KindOf 提取错误分类，未分类的错误归为 other。
func KindOf(err error) ErrorKind {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

// Completer 单轮文本补全能力。
type Completer interface {
	Complete(ctx context.Context, prompt string, opts ...Option) (string, error)
}

type options struct {
	maxTokens int
}

// Option 调整单次补全调用。
type Option func(*options)

// WithMaxTokens 覆盖配置中的最大生成长度。
func WithMaxTokens(n int) Option {
	return func(o *options) {
		o.maxTokens = n
	}
}

func applyOptions(defaultMaxTokens int, opts []Option) options {
	o := options{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SerializedCompleter 为不可重入的补全句柄加互斥锁。
type SerializedCompleter struct {
	mu    sync.Mutex
	inner Completer
}

func NewSerializedCompleter(inner Completer) *SerializedCompleter {
	return &SerializedCompleter{inner: inner}
}

func (s *SerializedCompleter) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Complete(ctx, prompt, opts...)
}

const (
	probePrompt    = "test"
	probeMaxTokens = 10
)

// Probe 启动时试调用一次云端补全。结果只是提示，请求期仍会尝试主路径。
func Probe(ctx context.Context, completer Completer, logger *zap.Logger) (ok bool) {
	if completer == nil {
		return false
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("llm probe panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	start := time.Now()
	if _, err := completer.Complete(ctx, probePrompt, WithMaxTokens(probeMaxTokens)); err != nil {
		logger.Warn("llm probe failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return false
	}
	logger.Info("llm probe succeeded", zap.Duration("elapsed", time.Since(start)))
	return true
}

func trimReply(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", completionErr(KindMalformed, errors.New("empty completion"))
	}
	return text, nil
}
