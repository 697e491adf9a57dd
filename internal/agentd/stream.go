// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/agentdeck/internal/model"
)

// =============================================================================
// TURN STREAM
// =============================================================================

// SilentEndMessage is the diagnostic used when the stream closes without a
// terminal frame.
const SilentEndMessage = "connection closed before a response arrived"

// streamReadSize is the chunk size used when pulling the response body.
const streamReadSize = 4096

// TurnRequest is the payload for the streamed turn endpoint.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TurnEvents holds the typed handlers a stream consumer dispatches into.
// Exactly one of OnResponse or OnError fires per successfully-opened
// stream; any number of OnProgress calls may precede it, in stream order.
// Nil handlers are skipped.
type TurnEvents struct {
	// OnStart fires once after a 2xx status, before any frame.
	OnStart func()

	// OnProgress fires for each progress frame.
	OnProgress func(p model.Progress)

	// OnResponse fires for the terminal response frame.
	OnResponse func(content string)

	// OnError fires for a terminal error frame, a malformed frame, a
	// mid-stream read failure, or a stream that ends silently.
	OnError func(message string)
}

// SendTurn posts a user message to the turn endpoint and consumes the
// framed reply stream.
//
// Returns an error only when the stream never opened: request creation,
// connection failure, or a non-2xx status (checked before any frame is
// parsed). Once the stream is open, every outcome — including transport
// drops and malformed frames — is delivered through the events so the
// caller always reaches a terminal state, with one exception: if ctx is
// cancelled the stream stops without a terminal event and ctx.Err() is
// returned, which is how a send targeting a deleted session is dropped.
//
// Bytes remaining after the terminal frame are discarded: one answer per
// turn, by policy.
func (c *Client) SendTurn(ctx context.Context, req TurnRequest, ev TurnEvents) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("User-Agent", "agentdeck/0.1.0")

	c.logRequest(httpReq)
	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	// Transport failure before any frame parsing is attempted.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readResponse(resp)
		return newAPIError(resp.StatusCode, body)
	}

	if ev.OnStart != nil {
		ev.OnStart()
	}

	return consumeStream(ctx, resp.Body, ev)
}

// consumeStream pulls chunks from the response body, feeds them through a
// frame decoder, and dispatches each frame until a terminal one arrives.
func consumeStream(ctx context.Context, body io.Reader, ev TurnEvents) error {
	decoder := NewFrameDecoder()
	buf := make([]byte, streamReadSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Feed(string(buf[:n])) {
				if dispatchFrame(frame, ev) {
					return nil
				}
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Stream ended without a terminal frame. Whether a clean
			// close or a mid-stream drop, the consumer must still
			// reach a terminal state, so synthesize an error.
			message := SilentEndMessage
			if readErr != io.EOF {
				message = fmt.Sprintf("stream read failed: %v", readErr)
			}
			if ev.OnError != nil {
				ev.OnError(message)
			}
			return nil
		}
	}
}

// dispatchFrame routes one frame to its handler. Returns true when the
// frame was terminal; the caller stops processing, even if further
// complete frames remain buffered.
func dispatchFrame(frame Frame, ev TurnEvents) bool {
	switch frame.Kind {
	case FrameProgress:
		if ev.OnProgress != nil {
			ev.OnProgress(model.Progress{
				Step:    frame.Step,
				Total:   frame.Total,
				Message: frame.Message,
			})
		}
		return false
	case FrameResponse:
		if ev.OnResponse != nil {
			ev.OnResponse(frame.Content)
		}
		return true
	case FrameError:
		if ev.OnError != nil {
			ev.OnError(frame.Message)
		}
		return true
	default:
		// The kind set is closed; an unknown value means the decoder
		// and dispatcher have diverged.
		panic(fmt.Sprintf("agentd: unhandled frame kind %d", frame.Kind))
	}
}
