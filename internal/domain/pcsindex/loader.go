package pcsindex

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type xmlIndex struct {
	Letters []xmlLetter `xml:"letter"`
}

type xmlLetter struct {
	Title     string    `xml:"title"`
	MainTerms []xmlTerm `xml:"mainTerm"`
}

type xmlTerm struct {
	Title string    `xml:"title"`
	Code  []string  `xml:"code"`
	Codes []string  `xml:"codes"`
	Tab   []string  `xml:"tab"`
	See   []string  `xml:"see"`
	Use   []string  `xml:"use"`
	Terms []xmlTerm `xml:"term"`
}

// LoadFile parses the term index XML at path. Any decode failure is returned
// with the file name so startup can fail fast.
func LoadFile(path string, logger zerolog.Logger) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open term index %s: %w", path, err)
	}
	defer f.Close()

	ix, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse term index %s: %w", path, err)
	}
	logger.Info().Str("file", path).Int("main_terms", ix.MainTermCount()).Msg("term index loaded")
	return ix, nil
}

// Parse decodes a term index document.
func Parse(r io.Reader) (*Index, error) {
	var doc xmlIndex
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	var mainTerms []*Node
	for _, letter := range doc.Letters {
		for i := range letter.MainTerms {
			mainTerms = append(mainTerms, buildNode(&letter.MainTerms[i]))
		}
	}
	return NewIndex(mainTerms), nil
}

func buildNode(t *xmlTerm) *Node {
	n := &Node{Title: strings.TrimSpace(t.Title)}
	for _, kind := range leafKinds {
		for _, v := range t.values(kind) {
			n.Leaves = append(n.Leaves, Leaf{Kind: kind, Value: strings.TrimSpace(v)})
		}
	}
	for i := range t.Terms {
		n.Children = append(n.Children, buildNode(&t.Terms[i]))
	}
	return n
}

func (t *xmlTerm) values(kind Kind) []string {
	switch kind {
	case KindCode:
		return t.Code
	case KindCodes:
		return t.Codes
	case KindTable:
		return t.Tab
	case KindSee:
		return t.See
	case KindUse:
		return t.Use
	}
	return nil
}
