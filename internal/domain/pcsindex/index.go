package pcsindex

import (
	"iter"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxResults caps Lookup when the caller passes a non-positive limit.
const DefaultMaxResults = 50

// Index is the in-memory term taxonomy. It is built once at load time and
// never modified afterwards, so it is safe for concurrent lookups.
type Index struct {
	mainTerms []*Node
}

// NewIndex builds an index over the given main terms.
func NewIndex(mainTerms []*Node) *Index {
	for _, mt := range mainTerms {
		prepare(mt)
	}
	return &Index{mainTerms: mainTerms}
}

func prepare(root *Node) {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.key = normalizeKey(n.Title)
		stack = append(stack, n.Children...)
	}
}

// MainTermCount returns the number of main terms in the index.
func (ix *Index) MainTermCount() int {
	return len(ix.mainTerms)
}

// Lookup returns up to maxResults deduplicated hits for query, in document
// order.
func (ix *Index) Lookup(query string, maxResults int) []IndexHit {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	hits := []IndexHit{}
	for h := range ix.Hits(query) {
		hits = append(hits, h)
		if len(hits) >= maxResults {
			break
		}
	}
	return hits
}

// Hits lazily yields every leaf under a node whose title contains query
// (case-insensitive). Duplicate (path, kind, value) hits are suppressed. An
// empty or blank query yields nothing.
func (ix *Index) Hits(query string) iter.Seq[IndexHit] {
	q := normalizeKey(query)
	return func(yield func(IndexHit) bool) {
		if q == "" {
			return
		}
		seen := make(map[string]struct{})
		emit := func(h IndexHit) bool {
			k := dedupKey(h)
			if _, dup := seen[k]; dup {
				return true
			}
			seen[k] = struct{}{}
			return yield(h)
		}
		for _, mt := range ix.mainTerms {
			if !visitMainTerm(mt, q, emit) {
				return
			}
		}
	}
}

type frame struct {
	node *Node
	path []string
}

// visitMainTerm emits the subtree of the main term when its title matches,
// otherwise the subtrees of the first matching terms on each branch. Once a
// node matches, its descendants would only produce the same hits again.
func visitMainTerm(mt *Node, q string, emit func(IndexHit) bool) bool {
	root := frame{node: mt, path: extendPath(nil, mt.Title)}
	stack := []frame{root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node.key != "" && strings.Contains(f.node.key, q) {
			if !emitSubtree(f, emit) {
				return false
			}
			continue
		}
		stack = pushChildren(stack, f)
	}
	return true
}

func emitSubtree(root frame, emit func(IndexHit) bool) bool {
	stack := []frame{root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, leaf := range f.node.Leaves {
			hit := IndexHit{
				TermPath:     append([]string(nil), f.path...),
				Kind:         leaf.Kind,
				Value:        leaf.Value,
				CodePrefixes: ExtractCodePrefixes(leaf.Value),
			}
			if hit.TermPath == nil {
				hit.TermPath = []string{}
			}
			if !emit(hit) {
				return false
			}
		}
		stack = pushChildren(stack, f)
	}
	return true
}

// pushChildren pushes in reverse so children pop in document order.
func pushChildren(stack []frame, f frame) []frame {
	for i := len(f.node.Children) - 1; i >= 0; i-- {
		child := f.node.Children[i]
		stack = append(stack, frame{node: child, path: extendPath(f.path, child.Title)})
	}
	return stack
}

func extendPath(path []string, title string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	if title != "" {
		out = append(out, title)
	}
	return out
}

func dedupKey(h IndexHit) string {
	return strings.Join(h.TermPath, "\x1f") + "\x1e" + string(h.Kind) + "\x1e" + h.Value
}

func normalizeKey(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}
