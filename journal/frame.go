// Package journal records resolved steps so an interrupted run can resume.
//
// A journal is a file of length-prefixed msgpack frames: a 4-byte big-endian
// payload length followed by the payload. The first frame is a Header; every
// later frame is one resolved step.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (4 MiB), including length prefix.
	MaxFrameSize = 4 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	HeaderType = "header"
	StepType   = "step"
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsPartialFrame reports whether err is a truncated-frame error.
// A partial frame at the end of a journal is the trace of an interrupted write.
func IsPartialFrame(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == FrameErrorPartial
}

// EncodeFrame marshals v and prefixes it with its length.
func EncodeFrame(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame and returns its raw msgpack payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// frameTypeHeader is used to peek at the type field without full decode.
type frameTypeHeader struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into a *Header or *StepFrame.
func DecodeFrame(payload []byte) (any, error) {
	var head frameTypeHeader
	if err := msgpack.Unmarshal(payload, &head); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode frame type", Err: err}
	}

	switch head.Type {
	case HeaderType:
		var h Header
		if err := msgpack.Unmarshal(payload, &h); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode header", Err: err}
		}
		return &h, nil
	case StepType:
		var s StepFrame
		if err := msgpack.Unmarshal(payload, &s); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode step", Err: err}
		}
		return &s, nil
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown frame type %q", head.Type)}
	}
}
