package pcstables

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// labelColumns is the column order of pcs_axis_label used by COPY.
var labelColumns = []string{
	"table_ordinal", "section", "body_system", "operation",
	"section_label", "body_system_label", "operation_label",
	"row_index", "pos", "axis_title", "ordinal", "code", "label",
}

// emptyAxisOrdinal marks a record that only carries the title of an axis
// without labels.
const emptyAxisOrdinal = -1

// headerRowIndex marks the single record stored for a table without rows.
const headerRowIndex = -1

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by the pcs_axis_label table.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) LoadTables(ctx context.Context) ([]*Table, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT table_ordinal, section, body_system, operation,
		        section_label, body_system_label, operation_label,
		        row_index, pos, axis_title, ordinal, code, label
		 FROM pcs_axis_label
		 ORDER BY table_ordinal, row_index, pos, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("query axis labels: %w", err)
	}
	defer rows.Close()

	var (
		tables  []*Table
		current *Table
		curOrd  = -1
	)
	for rows.Next() {
		var rec labelRecord
		if err := rows.Scan(&rec.tableOrdinal, &rec.section, &rec.bodySystem, &rec.operation,
			&rec.sectionLabel, &rec.bodySystemLabel, &rec.operationLabel,
			&rec.rowIndex, &rec.pos, &rec.axisTitle, &rec.ordinal, &rec.code, &rec.label); err != nil {
			return nil, fmt.Errorf("scan axis label: %w", err)
		}
		if current == nil || rec.tableOrdinal != curOrd {
			current = &Table{
				Section:         rec.section,
				BodySystem:      rec.bodySystem,
				Operation:       rec.operation,
				SectionLabel:    rec.sectionLabel,
				BodySystemLabel: rec.bodySystemLabel,
				OperationLabel:  rec.operationLabel,
			}
			curOrd = rec.tableOrdinal
			tables = append(tables, current)
		}
		if rec.rowIndex == headerRowIndex {
			continue
		}
		for len(current.Rows) <= rec.rowIndex {
			current.Rows = append(current.Rows, TableRow{})
		}
		axis := current.Rows[rec.rowIndex].Axis(rec.pos)
		if axis == nil {
			return nil, fmt.Errorf("axis label %s row %d: invalid position %d", current.Prefix(), rec.rowIndex, rec.pos)
		}
		axis.Title = rec.axisTitle
		if rec.ordinal != emptyAxisOrdinal {
			axis.Labels = append(axis.Labels, AxisLabel{Code: rec.code, Label: rec.label})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate axis labels: %w", err)
	}
	return tables, nil
}

func (r *repoPG) ReplaceTables(ctx context.Context, tables []*Table) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pcs_axis_label`); err != nil {
		return 0, fmt.Errorf("clear axis labels: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"pcs_axis_label"}, labelColumns, pgx.CopyFromRows(flatten(tables)))
	if err != nil {
		return 0, fmt.Errorf("copy axis labels: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit axis labels: %w", err)
	}
	return n, nil
}

type labelRecord struct {
	tableOrdinal    int
	section         string
	bodySystem      string
	operation       string
	sectionLabel    string
	bodySystemLabel string
	operationLabel  string
	rowIndex        int
	pos             int
	axisTitle       string
	ordinal         int
	code            string
	label           string
}

// flatten turns tables into COPY rows in labelColumns order. Axes without
// labels still produce one record so their title survives a round trip, and
// a table without rows produces a header record.
func flatten(tables []*Table) [][]any {
	var out [][]any
	for ti, t := range tables {
		if len(t.Rows) == 0 {
			out = append(out, []any{ti, t.Section, t.BodySystem, t.Operation,
				t.SectionLabel, t.BodySystemLabel, t.OperationLabel,
				headerRowIndex, 4, "", emptyAxisOrdinal, "", ""})
			continue
		}
		for ri := range t.Rows {
			for pos := 4; pos <= 7; pos++ {
				axis := t.Rows[ri].Axis(pos)
				base := []any{ti, t.Section, t.BodySystem, t.Operation,
					t.SectionLabel, t.BodySystemLabel, t.OperationLabel,
					ri, pos, axis.Title}
				if len(axis.Labels) == 0 {
					out = append(out, append(base, emptyAxisOrdinal, "", ""))
					continue
				}
				for li, l := range axis.Labels {
					rec := append(append([]any(nil), base...), li, l.Code, l.Label)
					out = append(out, rec)
				}
			}
		}
	}
	return out
}
