// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions, messages,
// and in-flight turn progress. The types here are owned by the session
// store; everything else holds ids, not references.
package model
