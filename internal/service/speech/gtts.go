package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
)

// gttsMaxChunk 翻译 TTS 接口单次请求的字符上限。
const gttsMaxChunk = 100

// GTTSSynthesizer 调用 Google 翻译的 TTS 接口，返回 MP3。
type GTTSSynthesizer struct {
	baseURL  string
	language string
	client   *http.Client
}

// NewGTTSSynthesizer 创建合成器。client 为 nil 时使用默认超时的 http.Client。
func NewGTTSSynthesizer(baseURL, language string, client *http.Client) *GTTSSynthesizer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if language == "" {
		language = "en"
	}
	return &GTTSSynthesizer{baseURL: baseURL, language: language, client: client}
}

func (g *GTTSSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	chunks := splitTTSText(text, gttsMaxChunk)
	if len(chunks) == 0 {
		return nil, "", ErrEmptyText
	}

	var out bytes.Buffer
	for idx, chunk := range chunks {
		data, err := g.fetch(ctx, chunk, idx, len(chunks))
		if err != nil {
			return nil, "", err
		}
		out.Write(data)
	}
	if out.Len() == 0 {
		return nil, "", ErrEmptyAudio
	}
	return out.Bytes(), audio.FormatMP3, nil
}

func (g *GTTSSynthesizer) fetch(ctx context.Context, chunk string, idx, total int) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", g.language)
	params.Set("q", chunk)
	params.Set("total", strconv.Itoa(total))
	params.Set("idx", strconv.Itoa(idx))
	params.Set("textlen", strconv.Itoa(len([]rune(chunk))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build gtts request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtts returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gtts response: %w", err)
	}
	return data, nil
}

// splitTTSText 按空白切分文本，每段不超过 limit 个字符；超长单词强制截断。
func splitTTSText(text string, limit int) []string {
	var (
		chunks  []string
		current []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = current[:0]
	}

	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(current) > 0 && len(current)+1+len(runes) > limit {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, runes...)
	}
	flush()
	return chunks
}
