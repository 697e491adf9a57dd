// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentd

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// FRAME GRAMMAR
// =============================================================================

const (
	// frameDelimiter separates frames on the wire. A frame is complete
	// only once its trailing blank line has arrived.
	frameDelimiter = "\n\n"

	// framePrefix marks a payload line inside a frame. Lines without the
	// prefix (comments, ids) are ignored.
	framePrefix = "data: "

	// maxFrameSize caps the bytes buffered while waiting for a frame's
	// delimiter. A backend that never sends one would otherwise grow the
	// remainder without bound.
	maxFrameSize = 1024 * 1024 // 1MB
)

// FrameKind identifies the three frame types of the turn stream. The set is
// closed: decode and dispatch both switch exhaustively over it, so a new
// kind is a compile-visible change.
type FrameKind int

const (
	// FrameProgress reports an intermediate step of the in-flight turn.
	FrameProgress FrameKind = iota

	// FrameResponse carries the final answer. Terminal.
	FrameResponse

	// FrameError carries a backend-reported failure. Terminal.
	FrameError
)

// String returns the wire name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameProgress:
		return "progress"
	case FrameResponse:
		return "response"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one decoded unit of the turn stream.
type Frame struct {
	Kind FrameKind

	// Progress fields
	Step  int
	Total int

	// Message holds the step description for progress frames and the
	// diagnostic for error frames.
	Message string

	// Content holds the final answer for response frames.
	Content string
}

// Terminal returns true for the frame kinds that end a stream.
func (f Frame) Terminal() bool {
	return f.Kind == FrameResponse || f.Kind == FrameError
}

// framePayload is the wire shape of a frame's JSON body.
type framePayload struct {
	Type    string `json:"type"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Content string `json:"content"`
}

// =============================================================================
// FRAME DECODER
// =============================================================================

// FrameDecoder extracts complete frames from an arbitrarily-chunked stream.
//
// The decoder is stateful across Feed calls within one stream: bytes after
// the last complete delimiter are retained and prepended to the next chunk,
// so frames may be split at any byte boundary or merged many-per-chunk
// without loss or reordering. A new stream must use a fresh decoder (or
// Reset).
//
// A malformed payload (JSON that does not parse, or an unknown type tag) is
// fatal for the stream: it is surfaced as a synthesized error frame rather
// than an error return, so the consumer tears down the same way it would
// for a backend-reported failure.
type FrameDecoder struct {
	remainder string
}

// NewFrameDecoder creates a decoder with an empty buffer.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Feed appends a chunk to the buffer and returns all frames completed by
// it, in arrival order. An unterminated frame larger than maxFrameSize is
// surfaced as a synthesized terminal error frame.
func (d *FrameDecoder) Feed(chunk string) []Frame {
	buf := d.remainder + chunk

	segments := strings.Split(buf, frameDelimiter)
	d.remainder = segments[len(segments)-1]

	var frames []Frame
	for _, segment := range segments[:len(segments)-1] {
		frame, ok := decodeSegment(segment)
		if !ok {
			continue
		}
		frames = append(frames, frame)
	}

	if len(d.remainder) > maxFrameSize {
		d.remainder = ""
		frames = append(frames, malformedFrame(
			fmt.Sprintf("frame exceeds %d bytes without a delimiter", maxFrameSize)))
	}
	return frames
}

// Reset discards any buffered remainder so the decoder can start a new
// stream.
func (d *FrameDecoder) Reset() {
	d.remainder = ""
}

// Buffered returns the number of bytes held back awaiting a delimiter.
func (d *FrameDecoder) Buffered() int {
	return len(d.remainder)
}

// decodeSegment parses one delimited segment into a frame. Segments with no
// payload line are skipped (ok=false); payload lines that fail to parse
// yield a synthesized error frame.
func decodeSegment(segment string) (Frame, bool) {
	var dataLines []string
	for _, line := range strings.Split(segment, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, framePrefix) {
			dataLines = append(dataLines, strings.TrimPrefix(line, framePrefix))
		}
	}
	if len(dataLines) == 0 {
		return Frame{}, false
	}

	data := strings.Join(dataLines, "\n")

	var payload framePayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return malformedFrame(fmt.Sprintf("unparseable payload: %v", err)), true
	}

	switch payload.Type {
	case "progress":
		return Frame{
			Kind:    FrameProgress,
			Step:    payload.Step,
			Total:   payload.Total,
			Message: payload.Message,
		}, true
	case "response":
		return Frame{
			Kind:    FrameResponse,
			Content: payload.Content,
		}, true
	case "error":
		return Frame{
			Kind:    FrameError,
			Message: payload.Message,
		}, true
	default:
		return malformedFrame(fmt.Sprintf("unknown frame type %q", payload.Type)), true
	}
}

// malformedFrame synthesizes the error frame used for undecodable input.
func malformedFrame(detail string) Frame {
	return Frame{
		Kind:    FrameError,
		Message: "malformed frame: " + detail,
	}
}
