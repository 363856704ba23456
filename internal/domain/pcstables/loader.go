package pcstables

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type xmlTabular struct {
	Tables []xmlTable `xml:"pcsTable"`
}

type xmlTable struct {
	Axes []xmlAxis `xml:"axis"`
	Rows []xmlRow  `xml:"pcsRow"`
}

type xmlRow struct {
	Axes []xmlAxis `xml:"axis"`
}

type xmlAxis struct {
	Pos    string     `xml:"pos,attr"`
	Title  string     `xml:"title"`
	Labels []xmlLabel `xml:"label"`
}

type xmlLabel struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

// LoadFile parses the code tables XML at path into a Store.
func LoadFile(path string, logger zerolog.Logger) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open code tables %s: %w", path, err)
	}
	defer f.Close()

	tables, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse code tables %s: %w", path, err)
	}
	store := NewStore(tables)
	logger.Info().Str("file", path).Int("tables", store.Len()).Msg("tables loaded")
	return store, nil
}

// Parse decodes a code tables document. A table without a section, body
// system or operation axis is rejected.
func Parse(r io.Reader) ([]*Table, error) {
	var doc xmlTabular
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	tables := make([]*Table, 0, len(doc.Tables))
	for i := range doc.Tables {
		t, err := buildTable(&doc.Tables[i])
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i+1, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func buildTable(xt *xmlTable) (*Table, error) {
	var ident [3]*xmlLabel
	for i := range xt.Axes {
		a := &xt.Axes[i]
		switch a.Pos {
		case "1", "2", "3":
			if len(a.Labels) == 0 {
				continue
			}
			ident[a.Pos[0]-'1'] = &a.Labels[0]
		}
	}
	for i, l := range ident {
		if l == nil || strings.TrimSpace(l.Code) == "" {
			return nil, fmt.Errorf("missing axis %d label", i+1)
		}
	}

	t := &Table{
		Section:         strings.TrimSpace(ident[0].Code),
		BodySystem:      strings.TrimSpace(ident[1].Code),
		Operation:       strings.TrimSpace(ident[2].Code),
		SectionLabel:    strings.TrimSpace(ident[0].Text),
		BodySystemLabel: strings.TrimSpace(ident[1].Text),
		OperationLabel:  strings.TrimSpace(ident[2].Text),
		Rows:            make([]TableRow, 0, len(xt.Rows)),
	}
	for _, xr := range xt.Rows {
		var row TableRow
		for i := range xr.Axes {
			a := &xr.Axes[i]
			pos, err := strconv.Atoi(strings.TrimSpace(a.Pos))
			if err != nil {
				continue
			}
			dst := row.Axis(pos)
			if dst == nil {
				continue
			}
			*dst = buildAxis(a)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// buildAxis keeps label order; a repeated code replaces the earlier label in
// place.
func buildAxis(a *xmlAxis) AxisLabels {
	out := AxisLabels{Title: strings.TrimSpace(a.Title), Labels: make([]AxisLabel, 0, len(a.Labels))}
	at := make(map[string]int, len(a.Labels))
	for _, l := range a.Labels {
		code := strings.TrimSpace(l.Code)
		label := strings.TrimSpace(l.Text)
		if i, ok := at[code]; ok {
			out.Labels[i].Label = label
			continue
		}
		at[code] = len(out.Labels)
		out.Labels = append(out.Labels, AxisLabel{Code: code, Label: label})
	}
	return out
}
