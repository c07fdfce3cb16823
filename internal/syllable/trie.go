// Package syllable implements the incremental syllable matcher: an ordered prefix tree of
// syllables, the keystroke accumulator that walks it, and the debounce gate in front of it.
package syllable

import (
	"sort"
	"strings"

	"github.com/book-expert/syllabs/internal/core"
)

// rootIndex is the notional super-root. Its children are the first characters of every
// inserted syllable; it never carries a resource.
const rootIndex int32 = 0

const (
	renderIndent = "    "
	renderBranch = "|---"
	renderMarker = "[x]"
)

type node struct {
	char     rune
	ref      core.ResourceRef
	hasRef   bool
	children []int32
}

// Trie is an arena-backed prefix tree over runes. Nodes live in a single slice and refer
// to their children by index; siblings are kept sorted by rune with no duplicates.
//
// A Trie is built once and then only read. It is not safe for concurrent Insert calls.
type Trie struct {
	nodes     []node
	syllables int
}

// NewTrie returns an empty trie.
func NewTrie() *Trie {
	return &Trie{
		nodes:     []node{{char: 0, ref: "", hasRef: false, children: nil}},
		syllables: 0,
	}
}

// Insert associates ref with syllable. Inserting the same syllable twice keeps the last
// ref. An empty syllable is ignored.
func (t *Trie) Insert(syllable string, ref core.ResourceRef) {
	if syllable == "" {
		return
	}

	current := rootIndex
	for _, char := range syllable {
		current = t.childOrInsert(current, char)
	}

	target := &t.nodes[current]
	if !target.hasRef {
		t.syllables++
	}

	target.ref = ref
	target.hasRef = true
}

// Lookup resolves candidate to a resource.
//
// When candidate spells a complete syllable, its ref is returned with isLeaf reporting
// whether no longer syllable extends it. When candidate is only a prefix of longer
// syllables, the single-character syllable of the landing node's label is used instead,
// or failing that the first syllable below the landing node in rune order; isLeaf is
// then always false. ok is false when candidate is empty or leaves the tree.
func (t *Trie) Lookup(candidate string) (ref core.ResourceRef, isLeaf bool, ok bool) {
	index, found := t.walk(candidate)
	if !found {
		return "", false, false
	}

	landing := &t.nodes[index]
	if landing.hasRef {
		return landing.ref, len(landing.children) == 0, true
	}

	labelIndex, labelFound := t.walk(string(landing.char))
	if labelFound && t.nodes[labelIndex].hasRef {
		return t.nodes[labelIndex].ref, false, true
	}

	return t.firstRef(index), false, true
}

// Len returns the number of distinct syllables stored.
func (t *Trie) Len() int {
	return t.syllables
}

// Syllables returns every stored syllable in rune order.
func (t *Trie) Syllables() []string {
	result := make([]string, 0, t.syllables)

	var prefix []rune

	var visit func(index int32)
	visit = func(index int32) {
		for _, child := range t.nodes[index].children {
			prefix = append(prefix, t.nodes[child].char)
			if t.nodes[child].hasRef {
				result = append(result, string(prefix))
			}

			visit(child)
			prefix = prefix[:len(prefix)-1]
		}
	}
	visit(rootIndex)

	return result
}

// String renders the tree one node per line, children indented under their parent and
// syllable-terminating nodes marked with "[x]".
func (t *Trie) String() string {
	var builder strings.Builder

	var render func(index int32, depth int)
	render = func(index int32, depth int) {
		current := &t.nodes[index]
		if depth > 0 {
			builder.WriteString(strings.Repeat(renderIndent, depth-1))
			builder.WriteString(renderBranch)
		}

		builder.WriteRune(current.char)

		if current.hasRef {
			builder.WriteString(renderMarker)
		}

		builder.WriteByte('\n')

		for _, child := range current.children {
			render(child, depth+1)
		}
	}

	for _, top := range t.nodes[rootIndex].children {
		render(top, 0)
	}

	return builder.String()
}

// walk follows candidate from the super-root and returns the landing node.
func (t *Trie) walk(candidate string) (int32, bool) {
	if candidate == "" {
		return 0, false
	}

	current := rootIndex
	for _, char := range candidate {
		position, found := t.search(current, char)
		if !found {
			return 0, false
		}

		current = t.nodes[current].children[position]
	}

	return current, true
}

// search returns the position of the first child of parent whose rune is >= char and
// whether that child is an exact match.
func (t *Trie) search(parent int32, char rune) (int, bool) {
	children := t.nodes[parent].children
	position := sort.Search(len(children), func(i int) bool {
		return t.nodes[children[i]].char >= char
	})

	return position, position < len(children) && t.nodes[children[position]].char == char
}

func (t *Trie) childOrInsert(parent int32, char rune) int32 {
	position, found := t.search(parent, char)
	if found {
		return t.nodes[parent].children[position]
	}

	index := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{char: char, ref: "", hasRef: false, children: nil})

	children := t.nodes[parent].children
	children = append(children, 0)
	copy(children[position+1:], children[position:])
	children[position] = index
	t.nodes[parent].children = children

	return index
}

// firstRef follows the smallest child until it reaches a syllable. Every node without a
// ref has at least one child, so the loop always terminates on a ref.
func (t *Trie) firstRef(index int32) core.ResourceRef {
	current := index
	for !t.nodes[current].hasRef && len(t.nodes[current].children) > 0 {
		current = t.nodes[current].children[0]
	}

	return t.nodes[current].ref
}
