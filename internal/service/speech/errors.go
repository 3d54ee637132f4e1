package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText 合成文本为空。
	ErrEmptyText = errors.New("tts text is empty")
	// ErrEmptyAudio 合成能力没有返回任何音频。
	ErrEmptyAudio = errors.New("tts audio is empty")
)

func panicError(component string, r any) error {
	return fmt.Errorf("%s panic: %v", component, r)
}
