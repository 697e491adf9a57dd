// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-memory session state: every known session,
// which one is active, and which transcripts have been loaded. It is the
// single writer target for server refreshes, lazy transcript loads, and
// turn results, and it arbitrates the races between them (stale refreshes
// are dropped by generation, late turn writes to deleted sessions are
// rejected).
package store
