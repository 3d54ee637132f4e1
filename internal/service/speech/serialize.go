package speech

import (
	"context"
	"sync"
)

// SerializedRecognizer 为不可重入的识别句柄加互斥锁。
type SerializedRecognizer struct {
	mu    sync.Mutex
	inner Recognizer
}

// NewSerializedRecognizer 包装 inner，使同一时刻只有一个调用。
func NewSerializedRecognizer(inner Recognizer) *SerializedRecognizer {
	return &SerializedRecognizer{inner: inner}
}

func (s *SerializedRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Recognize(ctx, samples, sampleRate)
}

// SerializedSynthesizer 为不可重入的合成句柄加互斥锁。
type SerializedSynthesizer struct {
	mu    sync.Mutex
	inner Synthesizer
}

// NewSerializedSynthesizer 包装 inner，使同一时刻只有一个调用。
func NewSerializedSynthesizer(inner Synthesizer) *SerializedSynthesizer {
	return &SerializedSynthesizer{inner: inner}
}

func (s *SerializedSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Synthesize(ctx, text)
}
