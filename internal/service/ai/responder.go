package ai

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Apology 是所有回复路径都失败时的固定回复。
const Apology = "I'm sorry, I couldn't process that request at the moment."

// Fallback 本地确定性回复能力。
type Fallback interface {
	Reply(utterance string) (string, error)
}

// Path 标记最终回复来自哪条路径。
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
	PathApology  Path = "apology"
)

type state int

const (
	stateAttemptPrimary state = iota
	statePrimarySuccess
	stateAttemptFallback
	stateFallbackSuccess
	stateFallbackFailure
)

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeUnavailable
)

// next 是回复状态机的转移函数，终态保持不变。
func next(s state, o outcome) state {
	switch s {
	case stateAttemptPrimary:
		if o == outcomeSucceeded {
			return statePrimarySuccess
		}
		return stateAttemptFallback
	case stateAttemptFallback:
		if o == outcomeSucceeded {
			return stateFallbackSuccess
		}
		return stateFallbackFailure
	default:
		return s
	}
}

// Responder 依次尝试云端补全、本地兜底与固定致歉，永不返回错误。
type Responder struct {
	primary  Completer
	fallback Fallback
	logger   *zap.Logger
}

// NewResponder 创建回复阶段。primary 或 fallback 为 nil 时视为该路径不可用。
func NewResponder(primary Completer, fallback Fallback, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		primary:  primary,
		fallback: fallback,
		logger:   logger.Named("responder"),
	}
}

// HasPrimary 表示是否配置了云端补全。
func (r *Responder) HasPrimary() bool {
	return r.primary != nil
}

// Respond 返回非空回复文本。
func (r *Responder) Respond(ctx context.Context, transcript string) string {
	text, _ := r.RespondWithPath(ctx, transcript)
	return text
}

// RespondWithPath 同 Respond，并返回实际采用的路径。
func (r *Responder) RespondWithPath(ctx context.Context, transcript string) (string, Path) {
	var reply string
	s := stateAttemptPrimary

	for {
		switch s {
		case stateAttemptPrimary:
			text, o := r.attemptPrimary(ctx, transcript)
			reply = text
			s = next(s, o)
		case stateAttemptFallback:
			text, o := r.attemptFallback(transcript)
			reply = text
			s = next(s, o)
		case statePrimarySuccess:
			return reply, PathPrimary
		case stateFallbackSuccess:
			return reply, PathFallback
		default:
			return Apology, PathApology
		}
	}
}

func (r *Responder) attemptPrimary(ctx context.Context, transcript string) (text string, o outcome) {
	if r.primary == nil {
		return "", outcomeUnavailable
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("primary completion panicked", zap.Any("panic", rec))
			text, o = "", outcomeFailed
		}
	}()

	reply, err := r.primary.Complete(ctx, BuildPrompt(transcript))
	if err == nil {
		reply = strings.TrimSpace(reply)
		if reply != "" {
			return reply, outcomeSucceeded
		}
		err = completionErr(KindMalformed, ErrUnavailable)
	}
	r.logger.Warn("primary completion failed, use fallback",
		zap.String("kind", string(KindOf(err))), zap.Error(err))
	return "", outcomeFailed
}

func (r *Responder) attemptFallback(transcript string) (text string, o outcome) {
	if r.fallback == nil {
		return "", outcomeUnavailable
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("fallback responder panicked", zap.Any("panic", rec))
			text, o = "", outcomeFailed
		}
	}()

	reply, err := r.fallback.Reply(transcript)
	if err != nil {
		r.logger.Warn("fallback responder failed", zap.Error(err))
		return "", outcomeFailed
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", outcomeFailed
	}
	return reply, outcomeSucceeded
}
