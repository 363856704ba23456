package pcsindex

import (
	"regexp"
	"strings"
)

// Kind identifies what a leaf of the term taxonomy points at.
type Kind string

// Leaf kinds, named after the element that carries them in the index file.
const (
	KindCode  Kind = "code"  // a direct code
	KindCodes Kind = "codes" // a list of (partial) codes
	KindTable Kind = "tab"   // a table reference (3-character prefix)
	KindSee   Kind = "see"   // cross-reference to another main term
	KindUse   Kind = "use"   // cross-reference to the preferred term
)

// leafKinds is the order leaves are read from a node.
var leafKinds = []Kind{KindCode, KindCodes, KindTable, KindSee, KindUse}

// IndexHit is one leaf returned by a lookup, together with the breadcrumb of
// term titles that leads to it.
type IndexHit struct {
	TermPath     []string `json:"term_path"`
	Kind         Kind     `json:"kind"`
	Value        string   `json:"value"`
	CodePrefixes []string `json:"code_prefixes"`
}

// Node is a main term or a nested term of the taxonomy.
type Node struct {
	Title    string
	Leaves   []Leaf
	Children []*Node

	key string // normalized lower-case title used for matching
}

// Leaf is a coded reference attached to a Node.
type Leaf struct {
	Kind  Kind
	Value string
}

var codeTokenRe = regexp.MustCompile(`[0-9A-Z]{3,7}`)

// ExtractCodePrefixes returns the alphanumeric code tokens (3 to 7
// characters) found in text after upper-casing it, left to right.
func ExtractCodePrefixes(text string) []string {
	if text == "" {
		return []string{}
	}
	found := codeTokenRe.FindAllString(strings.ToUpper(text), -1)
	if found == nil {
		return []string{}
	}
	return found
}
