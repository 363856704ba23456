package pcstables

import "context"

// Repository persists code tables outside the XML release files.
type Repository interface {
	// LoadTables returns every stored table in import order.
	LoadTables(ctx context.Context) ([]*Table, error)
	// ReplaceTables atomically swaps the stored tables for tables and returns
	// the number of label records written.
	ReplaceTables(ctx context.Context, tables []*Table) (int64, error)
}
