// Package richtext flattens Atlassian Document Format trees into plain text.
package richtext

import (
	"encoding/json"
	"strings"
)

// Node is one node of a rich-text document. Text-typed nodes carry literal
// text; every other known type carries children. Unknown types carry
// neither and are skipped.
type Node struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Content []Node `json:"content"`
}

// Flatten returns the concatenation of all text leaves in document order,
// joined by single spaces.
func Flatten(root Node) string {
	var texts []string
	walk(root, &texts)
	return strings.Join(texts, " ")
}

func walk(node Node, texts *[]string) {
	if node.Type == "text" {
		*texts = append(*texts, node.Text)
		return
	}
	for _, child := range node.Content {
		walk(child, texts)
	}
}

// FlattenRaw extracts plain text from a raw description field, which may be
// absent, a plain JSON string, an ADF document object, or a list of nodes.
// Malformed payloads degrade to an empty string rather than failing the
// record.
func FlattenRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}

	if trimmed[0] == '[' {
		var nodes []Node
		if err := json.Unmarshal(raw, &nodes); err != nil {
			return ""
		}
		return Flatten(Node{Content: nodes})
	}

	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	return Flatten(node)
}
