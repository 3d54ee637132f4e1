package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
	"github.com/zhouzirui/voice-pipeline/backend/internal/logging"
	speechmodel "github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/pipeline"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: probe, asr, respond, tts 或 pipeline")
	audioPath := flag.String("audio", "", "输入音频文件路径 (asr, pipeline)")
	text := flag.String("text", "", "输入文本 (respond, tts)")
	outputPath := flag.String("out", "", "输出音频文件路径，默认按时间戳生成")
	format := flag.String("format", "", "输入音频格式，默认按扩展名推断")
	timeout := flag.Duration("timeout", 90*time.Second, "整体超时时间")
	verbose := flag.Bool("v", false, "输出 debug 日志")

	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	caps, closer := pipeline.Bootstrap(ctx, cfg, nil, logger)
	defer closer()

	switch *mode {
	case "probe":
		runProbe(caps)
	case "asr":
		runASR(ctx, caps, readAudio(*audioPath, *format))
	case "respond":
		runRespond(ctx, caps, *text)
	case "tts":
		runTTS(ctx, caps, *text, *outputPath)
	case "pipeline":
		runPipeline(ctx, caps, logger, readAudio(*audioPath, *format), *outputPath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode 指定测试模式")
	}
}

func readAudio(path, format string) speechmodel.AudioBlob {
	if path == "" {
		log.Fatal("需要通过 -audio 指定音频文件路径")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	return speechmodel.AudioBlob{Data: data, Format: format}
}

func runProbe(caps *pipeline.Capabilities) {
	fmt.Printf("device=%s asr=%t llm=%t tts=%t\n", caps.Device, caps.ASRAvailable, caps.LLMAvailable, caps.TTSAvailable())
}

func runASR(ctx context.Context, caps *pipeline.Capabilities, blob speechmodel.AudioBlob) {
	wave, err := caps.Normalizer.Normalize(blob)
	if err != nil {
		log.Fatalf("音频解码失败: %v", err)
	}
	log.Printf("音频归一化完成: samples=%d rate=%d", len(wave.Samples), wave.SampleRate)

	start := time.Now()
	text := caps.Transcriber.Transcribe(ctx, wave)
	if text == "" {
		log.Fatal("识别结果为空")
	}
	log.Printf("ASR 识别成功: text=%q elapsed=%s", text, time.Since(start))
}

func runRespond(ctx context.Context, caps *pipeline.Capabilities, text string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("respond 模式需要通过 -text 提供输入文本")
	}
	reply, path := caps.Responder.RespondWithPath(ctx, text)
	log.Printf("回复路径=%s 内容=%q", path, reply)
}

func runTTS(ctx context.Context, caps *pipeline.Capabilities, text, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("tts 模式需要通过 -text 提供待合成文本")
	}
	if !caps.Synthesis.Available() {
		log.Fatal("语音合成不可用，请检查 TTS_PROVIDER 配置")
	}
	audio := caps.Synthesis.Synthesize(ctx, text)
	if audio == nil {
		log.Fatal("合成失败，未返回音频")
	}
	writeAudio(outputPath, audio.Data, audio.Format)
}

func runPipeline(ctx context.Context, caps *pipeline.Capabilities, logger *zap.Logger, blob speechmodel.AudioBlob, outputPath string) {
	result, err := pipeline.New(caps, nil, logger).Run(ctx, blob)
	if err != nil {
		log.Fatalf("流水线失败: %v", err)
	}
	log.Printf("识别=%q 回复=%q 音频=%t", result.Transcription, result.ResponseText, result.AudioAvailable)
	if !result.AudioAvailable {
		return
	}
	data, err := base64.StdEncoding.DecodeString(result.AudioData)
	if err != nil {
		log.Fatalf("音频解码失败: %v", err)
	}
	writeAudio(outputPath, data, result.AudioFormat)
}

func writeAudio(path string, data []byte, format string) {
	if path == "" {
		path = fmt.Sprintf("pipeline-output-%d.%s", time.Now().Unix(), format)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}
	log.Printf("音频已保存: path=%s bytes=%d", path, len(data))
}
