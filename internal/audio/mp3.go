package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/hajimehoshi/go-mp3"
)

// decodeMP3 解码 MP3，go-mp3 总是输出 16 位小端双声道 PCM。
func decodeMP3(r io.Reader) (*goaudio.IntBuffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder init failed: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}
	if len(raw) < 4 {
		return nil, errors.New("mp3 contains no samples")
	}

	frames := len(raw) / 4
	data := make([]int, frames*2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2])))
	}

	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: dec.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	}, nil
}

// TranscodeMP3File 读取 src 中的 MP3，写出同采样率的 16 位 PCM WAV 到 dst。
func TranscodeMP3File(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open mp3: %w", err)
	}
	defer in.Close()

	buf, err := decodeMP3(in)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := WriteWAV(out, buf); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

func decodeMP3Bytes(data []byte) (*goaudio.IntBuffer, error) {
	return decodeMP3(bytes.NewReader(data))
}
