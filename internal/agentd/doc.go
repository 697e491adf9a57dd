// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agentd implements the HTTP client for the agentd chat backend.
//
// The backend exposes a small REST surface for sessions and messages plus a
// streamed turn endpoint that answers with "data: {json}" frames separated
// by blank lines. This package owns the wire formats: the frame grammar and
// its chunk-tolerant decoder (frame.go), the stream consumer that turns a
// live response body into ordered typed events (stream.go), and the plain
// request/response endpoints with retry and backoff (client.go).
package agentd
