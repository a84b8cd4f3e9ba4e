package rag

import (
	"fmt"
	"strings"

	"github.com/mayank-meragi/notevault/internal/store"
)

// RenderContext formats ranked results as a context block for a chat
// model. Each result carries its source path, its line range, and line
// numbers injected into the text so the model can cite locations. Size
// budgeting against the model's context window is the caller's concern.
func RenderContext(results []store.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[[%s]] (lines %d-%d, similarity %.2f)\n",
			r.Record.Path, r.Record.StartLine, r.Record.EndLine, r.Score)
		b.WriteString(numberLines(r.Record.Content, r.Record.StartLine))
	}
	return b.String()
}

// numberLines prefixes each line with its 1-based line number in the
// source note, starting from startLine.
func numberLines(content string, startLine int) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", startLine+i, line)
	}
	return b.String()
}

// RenderMentioned formats directly-referenced notes ahead of the
// retrieved context.
func RenderMentioned(files []MentionedFile) string {
	if len(files) == 0 {
		return ""
	}

	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[[%s]]\n", f.Path)
		b.WriteString(numberLines(f.Content, 1))
	}
	return b.String()
}
