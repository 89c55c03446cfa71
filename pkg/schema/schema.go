package schema

import (
	"errors"
	"fmt"
)

// CellType tags the scalar type a column accepts.
type CellType int

const (
	CellString CellType = iota
	CellNumber
	CellBool
)

// String returns the type tag name used in error messages.
func (t CellType) String() string {
	switch t {
	case CellString:
		return "string"
	case CellNumber:
		return "number"
	case CellBool:
		return "bool"
	default:
		return fmt.Sprintf("CellType(%d)", int(t))
	}
}

// Column describes a single column: its cell type, whether a full-row write
// must supply it, and the default applied when an optional column is absent
// and a default is declared.
type Column struct {
	Type     CellType
	Required bool
	Default  any
}

// TableSchema maps column names to their descriptions.
type TableSchema map[string]Column

// Schema maps table names to their table schemas. It is the single source of
// truth every other component validates against.
type Schema map[string]TableSchema

// Validation errors. Schema violations are programmer errors: the caller's
// write is rejected synchronously and no state changes.
var (
	ErrTableUnknown   = errors.New("table not declared in schema")
	ErrColumnUnknown  = errors.New("column not declared in schema")
	ErrCellType       = errors.New("cell value has wrong type")
	ErrColumnRequired = errors.New("required column missing")
)

// ValidateCell checks a single cell value against the column's declared type.
func (c Column) ValidateCell(v any) error {
	switch c.Type {
	case CellString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: want string, got %T", ErrCellType, v)
		}
	case CellNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("%w: want number, got %T", ErrCellType, v)
		}
	case CellBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: want bool, got %T", ErrCellType, v)
		}
	}
	return nil
}

// Table returns the schema for the named table.
func (s Schema) Table(table string) (TableSchema, error) {
	ts, ok := s[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableUnknown, table)
	}
	return ts, nil
}

// ValidateRow checks a full-row write: every cell must belong to a declared
// column and match its type, and every required column must be present.
// Returns the validated cells with declared defaults filled in for absent
// optional columns; the input map is not modified.
func (s Schema) ValidateRow(table string, cells map[string]any) (map[string]any, error) {
	ts, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cells))
	for name, v := range cells {
		col, ok := ts[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrColumnUnknown, table, name)
		}
		if err := col.ValidateCell(v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, name, err)
		}
		out[name] = normalize(v)
	}
	for name, col := range ts {
		if _, ok := out[name]; ok {
			continue
		}
		if col.Required {
			return nil, fmt.Errorf("%w: %s.%s", ErrColumnRequired, table, name)
		}
		if col.Default != nil {
			out[name] = normalize(col.Default)
		}
	}
	return out, nil
}

// ValidatePartial checks a partial-row patch: declared columns and matching
// types only. Required columns may be absent since unmentioned cells are
// preserved by the store.
func (s Schema) ValidatePartial(table string, cells map[string]any) (map[string]any, error) {
	ts, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cells))
	for name, v := range cells {
		col, ok := ts[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrColumnUnknown, table, name)
		}
		if err := col.ValidateCell(v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, name, err)
		}
		out[name] = normalize(v)
	}
	return out, nil
}

// normalize widens integer cells to float64 so numeric cells have one
// in-store representation regardless of how the caller wrote them.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}
