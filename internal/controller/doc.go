// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller drives the conversation lifecycle: sending a turn,
// relaying its streamed progress, persisting the reply, and keeping the
// session store reconciled with the server.
//
// The controller splits work in two: background goroutines and command
// closures do the network I/O and deliver typed messages, and Apply
// performs every resulting store mutation. Run Apply from a single
// goroutine (the UI update loop, or a CLI's receive loop) and the store
// sees one writer in a deterministic order.
package controller
