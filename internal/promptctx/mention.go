// Package promptctx assembles the context string sent with each run: the
// selection, mentioned knowledge items and files, attached images, the
// buffer and an excerpt around the cursor.
package promptctx

import (
	"regexp"
	"strings"
)

// Kind is a mention namespace.
type Kind string

const (
	KindFile  Kind = "file"
	KindNode  Kind = "node"
	KindBlock Kind = "block"
)

// Mention is one @reference in an instruction.
type Mention struct {
	Kind Kind   `json:"kind"`
	Ref  string `json:"ref"`
}

func (m Mention) String() string {
	if m.Kind == KindFile {
		return "@" + m.Ref
	}
	return "@" + string(m.Kind) + ":" + m.Ref
}

// An @ opens a mention at the start of the text or after whitespace or an
// opening bracket, so e-mail addresses are not mentions.
var mentionPattern = regexp.MustCompile(`(?:^|[\s(\[{])@([^\s@]+)`)

// ParseMentions extracts mentions from an instruction in order of first
// appearance, dropping duplicates:
//
//	@node:<id>   a knowledge item
//	@block:<id>  a group of knowledge items
//	@<path>      a workspace file, or a glob pattern of files
func ParseMentions(instruction string) []Mention {
	var out []Mention
	seen := make(map[Mention]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(instruction, -1) {
		mention, ok := parseMention(m[1])
		if !ok || seen[mention] {
			continue
		}
		seen[mention] = true
		out = append(out, mention)
	}
	return out
}

func parseMention(raw string) (Mention, bool) {
	m := Mention{Kind: KindFile, Ref: raw}
	switch {
	case strings.HasPrefix(raw, "node:"):
		m = Mention{Kind: KindNode, Ref: strings.TrimPrefix(raw, "node:")}
	case strings.HasPrefix(raw, "block:"):
		m = Mention{Kind: KindBlock, Ref: strings.TrimPrefix(raw, "block:")}
	}
	m.Ref = trimMention(m.Ref)
	return m, m.Ref != ""
}

// trimMention strips sentence punctuation and unbalanced closing brackets
// from the end of a mention.
func trimMention(s string) string {
	for s != "" {
		last := s[len(s)-1]
		switch last {
		case '.', ',', ';', ':', '!', '?', '"', '\'':
		case ')', ']', '}':
			open := map[byte]byte{')': '(', ']': '[', '}': '{'}[last]
			if strings.Count(s, string(last)) <= strings.Count(s, string(open)) {
				return s
			}
		default:
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}
