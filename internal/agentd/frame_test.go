// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentd

import (
	"strings"
	"testing"
)

// turnScript is a realistic three-frame stream used across the chunking
// tests: two progress frames then the terminal response.
const turnScript = "data: {\"type\": \"progress\", \"step\": 1, \"total\": 3, \"message\": \"Thinking\"}\n\n" +
	"data: {\"type\": \"progress\", \"step\": 2, \"total\": 3, \"message\": \"Drafting\"}\n\n" +
	"data: {\"type\": \"response\", \"content\": \"Hello there.\"}\n\n"

// feedAll pushes the input through the decoder in pieces of the given size
// and collects everything decoded.
func feedAll(d *FrameDecoder, input string, chunkSize int) []Frame {
	var frames []Frame
	for len(input) > 0 {
		n := chunkSize
		if n > len(input) {
			n = len(input)
		}
		frames = append(frames, d.Feed(input[:n])...)
		input = input[n:]
	}
	return frames
}

func TestFrameDecoderSingleChunk(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Feed(turnScript)

	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].Kind != FrameProgress || frames[0].Step != 1 || frames[0].Total != 3 {
		t.Errorf("frame 0 = %+v, want progress 1/3", frames[0])
	}
	if frames[0].Message != "Thinking" {
		t.Errorf("frame 0 message = %q, want Thinking", frames[0].Message)
	}
	if frames[1].Kind != FrameProgress || frames[1].Step != 2 {
		t.Errorf("frame 1 = %+v, want progress 2/3", frames[1])
	}
	if frames[2].Kind != FrameResponse || frames[2].Content != "Hello there." {
		t.Errorf("frame 2 = %+v, want response", frames[2])
	}
	if d.Buffered() != 0 {
		t.Errorf("decoder retained %d bytes after complete input", d.Buffered())
	}
}

// TestFrameDecoderChunkingInvariance verifies the core decoder property:
// the decoded sequence is identical no matter where the byte stream is
// split, down to one byte per chunk.
func TestFrameDecoderChunkingInvariance(t *testing.T) {
	want := NewFrameDecoder().Feed(turnScript)

	for _, size := range []int{1, 2, 3, 7, 16, 64, len(turnScript)} {
		frames := feedAll(NewFrameDecoder(), turnScript, size)
		if len(frames) != len(want) {
			t.Fatalf("chunk size %d: got %d frames, want %d", size, len(frames), len(want))
		}
		for i := range want {
			if frames[i] != want[i] {
				t.Errorf("chunk size %d: frame %d = %+v, want %+v", size, i, frames[i], want[i])
			}
		}
	}
}

func TestFrameDecoderHoldsIncompleteFrame(t *testing.T) {
	d := NewFrameDecoder()

	// Complete payload line but no blank-line terminator yet.
	frames := d.Feed("data: {\"type\": \"response\", \"content\": \"hi\"}\n")
	if len(frames) != 0 {
		t.Fatalf("decoder emitted %d frames before delimiter", len(frames))
	}
	if d.Buffered() == 0 {
		t.Fatal("decoder dropped the incomplete frame")
	}

	frames = d.Feed("\n")
	if len(frames) != 1 || frames[0].Kind != FrameResponse {
		t.Fatalf("expected response frame after delimiter, got %+v", frames)
	}
}

func TestFrameDecoderCapsUnterminatedFrame(t *testing.T) {
	d := NewFrameDecoder()

	// A frame that never terminates must not buffer without bound: once
	// past the cap it becomes a terminal error frame and the buffer is
	// released.
	chunk := "data: " + strings.Repeat("x", 64*1024)
	var frames []Frame
	for len(frames) == 0 {
		frames = d.Feed(chunk)
	}

	if len(frames) != 1 || frames[0].Kind != FrameError {
		t.Fatalf("expected a single error frame, got %+v", frames)
	}
	if !strings.Contains(frames[0].Message, "malformed frame") {
		t.Errorf("message = %q", frames[0].Message)
	}
	if d.Buffered() != 0 {
		t.Errorf("decoder still buffering %d bytes after overflow", d.Buffered())
	}
}

func TestFrameDecoderIgnoresUnprefixedLines(t *testing.T) {
	d := NewFrameDecoder()

	input := ": keepalive\n\n" +
		"event: message\ndata: {\"type\": \"response\", \"content\": \"ok\"}\n\n"
	frames := d.Feed(input)

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Kind != FrameResponse || frames[0].Content != "ok" {
		t.Errorf("frame = %+v, want response ok", frames[0])
	}
}

func TestFrameDecoderCRLF(t *testing.T) {
	d := NewFrameDecoder()

	frames := d.Feed("data: {\"type\": \"progress\", \"step\": 1, \"total\": 2, \"message\": \"x\"}\r\n\ndata: {\"type\": \"response\", \"content\": \"done\"}\r\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1].Content != "done" {
		t.Errorf("response content = %q, want done", frames[1].Content)
	}
}

func TestFrameDecoderMalformedPayload(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad json", "data: {not json}\n\n"},
		{"unknown type", "data: {\"type\": \"surprise\"}\n\n"},
		{"empty type", "data: {\"content\": \"x\"}\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := NewFrameDecoder().Feed(tt.input)
			if len(frames) != 1 {
				t.Fatalf("expected 1 synthesized frame, got %d", len(frames))
			}
			if frames[0].Kind != FrameError {
				t.Errorf("kind = %v, want error", frames[0].Kind)
			}
			if !frames[0].Terminal() {
				t.Error("synthesized frame must be terminal")
			}
			if !strings.HasPrefix(frames[0].Message, "malformed frame: ") {
				t.Errorf("message = %q, want malformed prefix", frames[0].Message)
			}
		})
	}
}

func TestFrameDecoderMultilinePayload(t *testing.T) {
	// Two data lines in one frame join with a newline before parsing.
	input := "data: {\"type\": \"response\",\ndata:  \"content\": \"joined\"}\n\n"
	frames := NewFrameDecoder().Feed(input)
	if len(frames) != 1 || frames[0].Content != "joined" {
		t.Fatalf("frames = %+v, want single joined response", frames)
	}
}

func TestFrameDecoderReset(t *testing.T) {
	d := NewFrameDecoder()
	d.Feed("data: {\"type\": \"resp")
	if d.Buffered() == 0 {
		t.Fatal("expected buffered remainder")
	}

	d.Reset()
	if d.Buffered() != 0 {
		t.Fatal("Reset left buffered bytes")
	}

	// Stale prefix must not contaminate the next stream.
	frames := d.Feed("data: {\"type\": \"response\", \"content\": \"fresh\"}\n\n")
	if len(frames) != 1 || frames[0].Content != "fresh" {
		t.Fatalf("frames after Reset = %+v", frames)
	}
}

func TestFrameTerminal(t *testing.T) {
	if (Frame{Kind: FrameProgress}).Terminal() {
		t.Error("progress must not be terminal")
	}
	if !(Frame{Kind: FrameResponse}).Terminal() {
		t.Error("response must be terminal")
	}
	if !(Frame{Kind: FrameError}).Terminal() {
		t.Error("error must be terminal")
	}
}

func TestFrameKindString(t *testing.T) {
	tests := []struct {
		kind FrameKind
		want string
	}{
		{FrameProgress, "progress"},
		{FrameResponse, "response"},
		{FrameError, "error"},
		{FrameKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("FrameKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
