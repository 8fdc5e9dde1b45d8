package promptctx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/afero"
)

// MinSimilarity is the lowest similarity at which a mention that matches no
// id falls back to the closest title.
const MinSimilarity = 0.7

// Node is a structured knowledge item, such as a definition or a lemma.
type Node struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Kind    string `json:"kind,omitempty"`
	Content string `json:"content"`
}

// Block groups knowledge items.
type Block struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Nodes   []string `json:"nodes"`
}

// Knowledge resolves @node: and @block: mentions.
type Knowledge interface {
	Node(ref string) (Node, bool)
	Block(ref string) (Block, bool)
}

// KnowledgeBase is an in-memory Knowledge.
type KnowledgeBase struct {
	nodes  []Node
	blocks []Block
}

var _ Knowledge = (*KnowledgeBase)(nil)

// NewKnowledgeBase creates a KnowledgeBase. Lookups prefer earlier entries
// on ties.
func NewKnowledgeBase(nodes []Node, blocks []Block) *KnowledgeBase {
	return &KnowledgeBase{nodes: nodes, blocks: blocks}
}

// LoadKnowledge reads a {"nodes": [...], "blocks": [...]} JSON file.
func LoadKnowledge(fs afero.Fs, path string) (*KnowledgeBase, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}
	var doc struct {
		Nodes  []Node  `json:"nodes"`
		Blocks []Block `json:"blocks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	return NewKnowledgeBase(doc.Nodes, doc.Blocks), nil
}

func (k *KnowledgeBase) Node(ref string) (Node, bool) {
	i := match(ref, len(k.nodes), func(i int) (string, string) {
		return k.nodes[i].ID, k.nodes[i].Title
	})
	if i < 0 {
		return Node{}, false
	}
	return k.nodes[i], true
}

func (k *KnowledgeBase) Block(ref string) (Block, bool) {
	i := match(ref, len(k.blocks), func(i int) (string, string) {
		return k.blocks[i].ID, k.blocks[i].Title
	})
	if i < 0 {
		return Block{}, false
	}
	return k.blocks[i], true
}

// match returns the index of the entry whose id equals ref, else whose
// title equals ref ignoring case, else whose id or title is most similar to
// ref above MinSimilarity. It returns -1 when nothing qualifies.
func match(ref string, n int, entry func(int) (id, title string)) int {
	for i := 0; i < n; i++ {
		if id, _ := entry(i); id == ref {
			return i
		}
	}
	for i := 0; i < n; i++ {
		if _, title := entry(i); strings.EqualFold(title, ref) {
			return i
		}
	}

	best, bestScore := -1, MinSimilarity
	needle := strings.ToLower(ref)
	for i := 0; i < n; i++ {
		id, title := entry(i)
		for _, candidate := range []string{id, title} {
			if candidate == "" {
				continue
			}
			if score := similarity(needle, strings.ToLower(candidate)); score > bestScore ||
				(score == bestScore && best < 0) {
				best, bestScore = i, score
			}
		}
	}
	return best
}

// similarity returns 1 minus the normalized Levenshtein distance of a and b.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1.0 - float64(dist)/float64(maxLen)
}
