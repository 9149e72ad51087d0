package datasource

import (
	"database/sql"
	"fmt"
	"time"
)

// CollectSQLRows reads a database/sql result set into a QueryResult.
// Byte slices become strings and time values are formatted as RFC 3339.
// When maxRows > 0 at most maxRows rows are kept and HasMoreRows reports
// whether the driver had more.
func CollectSQLRows(rows *sql.Rows, maxRows int) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	fields := make([]FieldInfo, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, ct := range columnTypes {
			fields[i] = fieldInfoFromColumnType(ct)
		}
	} else {
		for i, name := range columns {
			fields[i] = FieldInfo{Name: name}
		}
	}

	result := &QueryResult{
		Rows:   make([]map[string]any, 0),
		Fields: fields,
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.HasMoreRows = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

func fieldInfoFromColumnType(ct *sql.ColumnType) FieldInfo {
	info := FieldInfo{
		Name: ct.Name(),
		Type: ct.DatabaseTypeName(),
	}
	if nullable, ok := ct.Nullable(); ok {
		info.Nullable = &nullable
	}
	if length, ok := ct.Length(); ok {
		info.Length = &length
	}
	if precision, scale, ok := ct.DecimalSize(); ok {
		info.Precision = &precision
		info.Scale = &scale
	}
	return info
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
