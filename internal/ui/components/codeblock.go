// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

// HighlightCode applies syntax highlighting to a code snippet for
// terminal display. Used when markdown rendering is disabled, so fenced
// blocks still get color. On any failure the code is returned unstyled.
func HighlightCode(code, lang, style string) string {
	if lang == "" {
		lang = "text"
	}
	if style == "" {
		style = "monokai"
	}

	var buf strings.Builder
	if err := quick.Highlight(&buf, code, lang, "terminal256", style); err != nil {
		return code
	}
	return buf.String()
}

// codeFence marks fenced code blocks in raw message text.
const codeFence = "```"

// RenderPlain renders message content without markdown, still
// highlighting fenced code blocks.
func RenderPlain(content, syntaxStyle string) string {
	if !strings.Contains(content, codeFence) {
		return content
	}

	var out strings.Builder
	rest := content
	for {
		start := strings.Index(rest, codeFence)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		rest = rest[start+len(codeFence):]

		// Fence line may name a language.
		lang := ""
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			lang = strings.TrimSpace(rest[:nl])
			rest = rest[nl+1:]
		}

		end := strings.Index(rest, codeFence)
		if end < 0 {
			// Unterminated fence; emit as-is.
			out.WriteString(rest)
			break
		}
		out.WriteString(HighlightCode(rest[:end], lang, syntaxStyle))
		rest = rest[end+len(codeFence):]
	}
	return out.String()
}
