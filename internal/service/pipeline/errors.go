package pipeline

import (
	"errors"
	"fmt"
)

const (
	MsgBadAudio        = "Could not process audio format"
	MsgNoTranscription = "Could not transcribe audio"
	MsgInternal        = "internal server error"
)

// ClientError 是调用方输入导致的失败，消息可以直接返回给客户端。
type ClientError struct {
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ServerFault 是服务内部故障，不向客户端暴露细节。
type ServerFault struct {
	Err error
}

func (e *ServerFault) Error() string {
	return fmt.Sprintf("server fault: %v", e.Err)
}

func (e *ServerFault) Unwrap() error {
	return e.Err
}

// IsClientError 判断 err 链中是否存在 ClientError。
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
