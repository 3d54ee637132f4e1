package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制帧：4 字节头 + 可选序号/事件元数据 + 负载长度 + 负载。

const protocolVersion = 0b0001

type frameType uint8

const (
	frameFullClientRequest frameType = 0b0001
	frameAudioOnlyRequest  frameType = 0b0010
	frameFullServerReply   frameType = 0b1001
	frameAudioOnlyReply    frameType = 0b1011
	frameError             frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence       frameFlags = 0b0000
	flagPositiveSequence frameFlags = 0b0001
	flagLastNoSequence   frameFlags = 0b0010
	flagNegativeSequence frameFlags = 0b0011
	flagWithEvent        frameFlags = 0b0100
)

type serialization uint8

const (
	serializeNone serialization = 0b0000
	serializeJSON serialization = 0b0001
)

type compression uint8

const (
	compressNone compression = 0b0000
	compressGzip compression = 0b0001
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
)

type frame struct {
	Type          frameType
	Flags         frameFlags
	Serialization serialization
	Compression   compression
	Sequence      int32
	Event         eventType
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

func (f *frame) hasSequence() bool {
	s := f.Flags & 0b0011
	return s == flagPositiveSequence || s == flagNegativeSequence
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagWithEvent == flagWithEvent
}

// isLast 判断是否为流中最后一帧。
func (f *frame) isLast() bool {
	s := f.Flags & 0b0011
	return s == flagLastNoSequence || s == flagNegativeSequence
}

func eventCarriesSession(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	}
	return true
}

func eventCarriesConnect(e eventType) bool {
	return e == eventConnectionStarted || e == eventConnectionFailed || e == eventConnectionFinished
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(f.Type)<<4 | uint8(f.Flags),
		uint8(f.Serialization)<<4 | uint8(f.Compression),
		0x00,
	})

	if f.hasSequence() {
		binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.hasEvent() {
		binary.Write(&buf, binary.BigEndian, int32(f.Event))
		if eventCarriesSession(f.Event) {
			writeSized(&buf, []byte(f.SessionID))
		}
		if eventCarriesConnect(f.Event) {
			writeSized(&buf, []byte(f.ConnectID))
		}
	}
	if f.Type == frameError {
		binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}
	writeSized(&buf, f.Payload)
	return buf.Bytes()
}

func writeSized(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func unmarshalFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if version := head[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("failed to skip extended header: %w", err)
		}
	}

	f := &frame{
		Type:          frameType(head[1] >> 4),
		Flags:         frameFlags(head[1] & 0x0F),
		Serialization: serialization(head[2] >> 4),
		Compression:   compression(head[2] & 0x0F),
	}

	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
	}

	if f.hasEvent() {
		var event int32
		if err := binary.Read(r, binary.BigEndian, &event); err != nil {
			return nil, fmt.Errorf("failed to read event type: %w", err)
		}
		f.Event = eventType(event)
		if eventCarriesSession(f.Event) {
			session, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read session id: %w", err)
			}
			f.SessionID = string(session)
		}
		if eventCarriesConnect(f.Event) {
			connect, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read connect id: %w", err)
			}
			f.ConnectID = string(connect)
		}
	}

	if f.Type == frameError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
	}

	payload, err := readSized(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	f.Payload = payload
	return f, nil
}

func readSized(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("expected %d bytes: %w", size, err)
	}
	return data, nil
}

func newFullClientRequest(payload []byte, comp compression) *frame {
	return &frame{
		Type:          frameFullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializeJSON,
		Compression:   comp,
		Payload:       payload,
	}
}

// newAudioRequest 构建音频帧，最后一包用负序号标记。
func newAudioRequest(chunk []byte, sequence int32, last bool, comp compression) *frame {
	f := &frame{
		Type:          frameAudioOnlyRequest,
		Serialization: serializeNone,
		Compression:   comp,
		Sequence:      sequence,
		Payload:       chunk,
	}
	switch {
	case last && sequence != 0:
		f.Flags = flagNegativeSequence
		f.Sequence = -sequence
	case last:
		f.Flags = flagLastNoSequence
	case sequence > 0:
		f.Flags = flagPositiveSequence
	default:
		f.Flags = flagNoSequence
	}
	return f
}
