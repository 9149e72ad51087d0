package introspection

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

const mysqlSystemSchemas = `('information_schema', 'performance_schema', 'mysql', 'sys')`

// mysqlCatalog treats a MySQL database and schema as one object: every row is
// reported with the same name for both, and a database or schema scope both
// filter TABLE_SCHEMA.
type mysqlCatalog struct {
	r *runner
}

var (
	_ catalog          = (*mysqlCatalog)(nil)
	_ indexLister      = (*mysqlCatalog)(nil)
	_ foreignKeyLister = (*mysqlCatalog)(nil)
)

func newMySQLCatalog(r *runner) *mysqlCatalog {
	return &mysqlCatalog{r: r}
}

func (c *mysqlCatalog) scope(database, schema string) *predicates {
	p := &predicates{placeholder: questionPlaceholder}
	p.eq("table_schema", database)
	p.eq("table_schema", schema)
	return p
}

func (c *mysqlCatalog) schemaRows(ctx context.Context, database string) ([]row, error) {
	base := `
		SELECT
			SCHEMA_NAME AS table_schema,
			DEFAULT_CHARACTER_SET_NAME AS character_set,
			DEFAULT_COLLATION_NAME AS collation
		FROM information_schema.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ` + mysqlSystemSchemas
	p := c.scope(database, "")
	return c.r.rows(ctx, p.scoped(base, "q.table_schema"), p.args...)
}

func (c *mysqlCatalog) listDatabases(ctx context.Context) ([]models.Database, error) {
	rows, err := c.schemaRows(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	dbs := make([]models.Database, 0, len(rows))
	for _, r := range rows {
		dbs = append(dbs, models.Database{
			Name:     r.str("table_schema"),
			Metadata: r.metadata("character_set", "collation"),
		})
	}
	return dbs, nil
}

func (c *mysqlCatalog) listSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	rows, err := c.schemaRows(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	schemas := make([]models.Schema, 0, len(rows))
	for _, r := range rows {
		name := r.str("table_schema")
		schemas = append(schemas, models.Schema{
			Name:     name,
			Database: name,
			Metadata: r.metadata("character_set", "collation"),
		})
	}
	return schemas, nil
}

func (c *mysqlCatalog) listTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	base := `
		SELECT
			TABLE_SCHEMA AS table_schema,
			TABLE_NAME AS table_name,
			TABLE_TYPE AS table_type,
			TABLE_ROWS AS row_count,
			DATA_LENGTH + INDEX_LENGTH AS size_bytes,
			TABLE_COMMENT AS comment,
			CREATE_TIME AS created,
			UPDATE_TIME AS last_altered,
			ENGINE AS engine
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA NOT IN ` + mysqlSystemSchemas
	p := c.scope(database, schema)
	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables := make([]models.Table, 0, len(rows))
	for _, r := range rows {
		name := r.str("table_schema")
		tables = append(tables, models.Table{
			Name:         r.str("table_name"),
			Schema:       name,
			Database:     name,
			Type:         mapTableType(r.str("table_type")),
			RowCount:     r.int64Ptr("row_count"),
			SizeBytes:    r.int64Ptr("size_bytes"),
			Comment:      r.str("comment"),
			Created:      r.timePtr("created"),
			LastModified: r.timePtr("last_altered"),
			Metadata:     r.metadata("engine"),
		})
	}
	return tables, nil
}

func (c *mysqlCatalog) listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	base := `
		SELECT
			TABLE_SCHEMA AS table_catalog,
			TABLE_SCHEMA AS table_schema,
			TABLE_NAME AS table_name,
			COLUMN_NAME AS column_name,
			ORDINAL_POSITION AS ordinal_position,
			DATA_TYPE AS data_type,
			COLUMN_TYPE AS column_type,
			IS_NULLABLE AS is_nullable,
			COLUMN_DEFAULT AS column_default,
			CHARACTER_MAXIMUM_LENGTH AS character_maximum_length,
			NUMERIC_PRECISION AS numeric_precision,
			NUMERIC_SCALE AS numeric_scale,
			COLUMN_COMMENT AS comment,
			COLUMN_KEY AS column_key,
			EXTRA AS extra
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA NOT IN ` + mysqlSystemSchemas
	p := c.scope(database, schema)
	p.eq("table_name", table)
	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.ordinal_position"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return columnsFromRows(rows, "column_type", "column_key", "extra"), nil
}

func (c *mysqlCatalog) listViews(ctx context.Context, database, schema string) ([]models.View, error) {
	base := `
		SELECT
			TABLE_SCHEMA AS table_catalog,
			TABLE_SCHEMA AS table_schema,
			TABLE_NAME AS table_name,
			VIEW_DEFINITION AS view_definition
		FROM information_schema.VIEWS
		WHERE TABLE_SCHEMA NOT IN ` + mysqlSystemSchemas
	p := c.scope(database, schema)
	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	return viewsFromRows(rows), nil
}

func (c *mysqlCatalog) tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	db := database
	if db == "" {
		db = schema
	}
	const query = `
		SELECT TABLE_ROWS AS row_count, DATA_LENGTH + INDEX_LENGTH AS size_bytes
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`
	rows, err := c.r.rows(ctx, query, db, table)
	if err != nil {
		return nil, fmt.Errorf("query table statistics: %w", err)
	}
	stats := &models.TableStatistics{
		Table:            table,
		Schema:           db,
		Database:         db,
		ColumnStatistics: []models.ColumnStatistics{},
		LastUpdated:      time.Now(),
	}
	if len(rows) > 0 {
		stats.RowCount = rows[0].int64Value("row_count")
		stats.SizeBytes = rows[0].int64Ptr("size_bytes")
	}
	return stats, nil
}

func (c *mysqlCatalog) listIndexes(ctx context.Context, database, schema string) ([]models.Index, error) {
	base := `
		SELECT
			TABLE_SCHEMA AS table_catalog,
			TABLE_SCHEMA AS table_schema,
			TABLE_NAME AS table_name,
			INDEX_NAME AS index_name,
			MIN(NON_UNIQUE) = 0 AS is_unique,
			INDEX_NAME = 'PRIMARY' AS is_primary,
			MIN(INDEX_TYPE) AS index_type,
			GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX SEPARATOR ',') AS column_names
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA NOT IN ` + mysqlSystemSchemas + `
		GROUP BY TABLE_SCHEMA, TABLE_NAME, INDEX_NAME`
	p := c.scope(database, schema)
	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.index_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	return indexesFromRows(rows), nil
}

func (c *mysqlCatalog) listForeignKeys(ctx context.Context, database, schema string) ([]models.ForeignKey, error) {
	base := `
		SELECT
			k.TABLE_SCHEMA AS table_schema,
			k.TABLE_NAME AS table_name,
			k.CONSTRAINT_NAME AS constraint_name,
			k.REFERENCED_TABLE_SCHEMA AS referenced_schema,
			k.REFERENCED_TABLE_NAME AS referenced_table,
			GROUP_CONCAT(k.COLUMN_NAME ORDER BY k.ORDINAL_POSITION SEPARATOR ',') AS column_names,
			GROUP_CONCAT(k.REFERENCED_COLUMN_NAME ORDER BY k.ORDINAL_POSITION SEPARATOR ',') AS referenced_column_names,
			MIN(rc.DELETE_RULE) AS on_delete,
			MIN(rc.UPDATE_RULE) AS on_update
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
		  ON rc.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
		 AND rc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		 AND rc.TABLE_NAME = k.TABLE_NAME
		WHERE k.REFERENCED_TABLE_NAME IS NOT NULL
		  AND k.TABLE_SCHEMA NOT IN ` + mysqlSystemSchemas + `
		GROUP BY k.TABLE_SCHEMA, k.TABLE_NAME, k.CONSTRAINT_NAME,
		         k.REFERENCED_TABLE_SCHEMA, k.REFERENCED_TABLE_NAME`
	p := c.scope(database, schema)
	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.constraint_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	fks := make([]models.ForeignKey, 0, len(rows))
	for _, r := range rows {
		s := r.str("table_schema")
		rs := r.str("referenced_schema")
		fks = append(fks, models.ForeignKey{
			Name:               r.str("constraint_name"),
			Table:              r.str("table_name"),
			Schema:             s,
			Database:           s,
			Columns:            splitList(r.str("column_names")),
			ReferencedTable:    r.str("referenced_table"),
			ReferencedSchema:   rs,
			ReferencedDatabase: rs,
			ReferencedColumns:  splitList(r.str("referenced_column_names")),
			OnDelete:           r.str("on_delete"),
			OnUpdate:           r.str("on_update"),
		})
	}
	return fks, nil
}
