package intent

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Label 表示本地兜底回复能识别的意图。
type Label string

const (
	Unknown   Label = "unknown"
	Greeting  Label = "greeting"
	Wellbeing Label = "wellbeing"
	Thanks    Label = "thanks"
	Farewell  Label = "farewell"
	Time      Label = "time"
	Weather   Label = "weather"
	Help      Label = "help"
)

// ErrEmptyUtterance 输入为空时无法给出回复。
var ErrEmptyUtterance = errors.New("utterance is empty")

// Decision 给出意图识别结果与得分。
type Decision struct {
	Intent Label
	Score  int
}

var keywordBuckets = map[Label][]string{
	Greeting:  {"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "你好", "嗨"},
	Wellbeing: {"how are you", "how's it going", "how are things", "how do you do", "最近好吗"},
	Thanks:    {"thank", "thanks", "appreciate", "谢谢", "多谢"},
	Farewell:  {"bye", "goodbye", "see you", "good night", "later", "再见", "拜拜"},
	Time:      {"what time", "the time", "what day", "today's date", "几点", "日期"},
	Weather:   {"weather", "rain", "sunny", "temperature", "forecast", "天气", "下雨"},
	Help:      {"help", "can you", "could you", "what can", "assist", "帮忙", "帮我"},
}

// priority 用于同分时的稳定排序，越靠前越优先。
var priority = []Label{Farewell, Thanks, Wellbeing, Time, Weather, Help, Greeting}

// Classify 依据关键词命中次数推断意图。
func Classify(utterance string) Decision {
	normalized := tokenize(utterance)
	if strings.TrimSpace(normalized) == "" {
		return Decision{Intent: Unknown}
	}

	best := Decision{Intent: Unknown}
	for _, label := range priority {
		score := 0
		for _, word := range keywordBuckets[label] {
			if matches(normalized, word) {
				score += 3
			}
		}
		if score > best.Score {
			best = Decision{Intent: label, Score: score}
		}
	}
	return best
}

// tokenize 转小写并按非字母数字切词，返回首尾带空格、以单个空格分隔的词串。
func tokenize(utterance string) string {
	lower := strings.ReplaceAll(strings.ToLower(utterance), "’", "'")
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return " " + strings.Join(fields, " ") + " "
}

// matches 对 ASCII 关键词按整词匹配，中文关键词没有词边界，按子串匹配。
func matches(tokens, keyword string) bool {
	if isASCII(keyword) {
		return strings.Contains(tokens, " "+keyword+" ")
	}
	return strings.Contains(tokens, keyword)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Responder 是不依赖任何外部服务的确定性回复器。
type Responder struct {
	now func() time.Time
}

// NewResponder 创建本地回复器。
func NewResponder() *Responder {
	return &Responder{now: time.Now}
}

// Reply 根据意图返回固定话术，未识别的意图回显用户原话。
func (r *Responder) Reply(utterance string) (string, error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return "", ErrEmptyUtterance
	}

	switch Classify(text).Intent {
	case Greeting:
		return "Hello! It's nice to hear from you. What would you like to talk about?", nil
	case Wellbeing:
		return "I'm doing well, thanks for asking. How can I help you today?", nil
	case Thanks:
		return "You're welcome! Let me know if there's anything else I can do.", nil
	case Farewell:
		return "Goodbye! Talk to you soon.", nil
	case Time:
		return fmt.Sprintf("It's %s right now.", r.now().Format("3:04 PM on Monday, January 2")), nil
	case Weather:
		return "I can't check the weather right now, but a local forecast service will have the latest conditions.", nil
	case Help:
		return "I'm running in offline mode, so I can only handle simple requests right now. Please try again in a moment.", nil
	default:
		return fmt.Sprintf("I heard you say: %q. I'm running in offline mode right now, so I can't give a full answer.", text), nil
	}
}
