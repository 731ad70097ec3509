// Package toc extracts a table of contents from markdown-ish text.
package toc

import (
	"encoding/json"
	"strings"

	"github.com/vsedlak/chatrag/pkg/types"
)

const maxLevel = 6

// Extract returns the headings found in text, in document order. ATX
// headings ("## Title") and setext underlines ("Title\n=====") are both
// recognized. Position is the byte offset of the heading line.
func Extract(text string) []types.TOCItem {
	var items []types.TOCItem

	lines := strings.Split(text, "\n")
	offset := 0
	inFence := false
	for i, line := range lines {
		lineOffset := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		if item, ok := atxHeading(trimmed); ok {
			item.Position = lineOffset
			items = append(items, item)
			continue
		}

		// Setext: a non-empty line underlined by = or - on the next line.
		if i+1 < len(lines) && trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if level, ok := setextLevel(strings.TrimSpace(lines[i+1])); ok {
				items = append(items, types.TOCItem{
					Title:    trimmed,
					Level:    level,
					Position: lineOffset,
				})
			}
		}
	}

	return items
}

// ExtractJSON returns the headings as a JSON array, or "" when the text
// has no headings.
func ExtractJSON(text string) string {
	items := Extract(text)
	if len(items) == 0 {
		return ""
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(data)
}

func atxHeading(line string) (types.TOCItem, bool) {
	if !strings.HasPrefix(line, "#") {
		return types.TOCItem{}, false
	}

	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > maxLevel || level == len(line) || line[level] != ' ' {
		return types.TOCItem{}, false
	}

	title := strings.TrimSpace(line[level:])
	title = strings.TrimRight(title, "# ")
	if title == "" {
		return types.TOCItem{}, false
	}

	return types.TOCItem{Title: title, Level: level}, true
}

func setextLevel(line string) (int, bool) {
	if len(line) < 2 {
		return 0, false
	}
	if strings.Count(line, "=") == len(line) {
		return 1, true
	}
	if strings.Count(line, "-") == len(line) {
		return 2, true
	}
	return 0, false
}
