// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across agentdeck: UTF-8 and
// display-width safe string handling, and crash-safe file writing.
package util
