package introspection

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// pgSystemSchemas are never introspected.
const pgSystemSchemas = `('information_schema', 'pg_catalog', 'pg_toast')`

// postgresCatalog reads pg_catalog and information_schema. A Postgres
// connection only sees the catalog of its own database, so everything below
// the database list is scoped to current_database().
type postgresCatalog struct {
	r *runner
}

var (
	_ catalog          = (*postgresCatalog)(nil)
	_ indexLister      = (*postgresCatalog)(nil)
	_ foreignKeyLister = (*postgresCatalog)(nil)
)

func newPostgresCatalog(r *runner) *postgresCatalog {
	return &postgresCatalog{r: r}
}

func (c *postgresCatalog) predicates() *predicates {
	return &predicates{placeholder: dollarPlaceholder}
}

func (c *postgresCatalog) listDatabases(ctx context.Context) ([]models.Database, error) {
	const query = `
		SELECT
			d.datname AS name,
			pg_get_userbyid(d.datdba) AS owner,
			shobj_description(d.oid, 'pg_database') AS comment,
			d.datacl::text AS acl,
			d.datcollate AS collation,
			d.datctype AS ctype,
			pg_encoding_to_char(d.encoding) AS encoding
		FROM pg_database d
		WHERE d.datistemplate = false
		ORDER BY d.datname
	`
	rows, err := c.r.rows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	dbs := make([]models.Database, 0, len(rows))
	for _, r := range rows {
		dbs = append(dbs, models.Database{
			Name:     r.str("name"),
			Owner:    r.str("owner"),
			Comment:  r.str("comment"),
			Metadata: r.metadata("acl", "collation", "ctype", "encoding"),
		})
	}
	return dbs, nil
}

func (c *postgresCatalog) listSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	base := `
		SELECT
			s.catalog_name,
			s.schema_name,
			s.schema_owner,
			obj_description(n.oid, 'pg_namespace') AS comment
		FROM information_schema.schemata s
		LEFT JOIN pg_namespace n ON n.nspname = s.schema_name
		WHERE s.schema_name NOT IN ` + pgSystemSchemas + `
		  AND s.schema_name NOT LIKE 'pg_temp_%'
		  AND s.schema_name NOT LIKE 'pg_toast_temp_%'`
	p := c.predicates()
	p.eq("catalog_name", database)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.schema_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	schemas := make([]models.Schema, 0, len(rows))
	for _, r := range rows {
		schemas = append(schemas, models.Schema{
			Name:     r.str("schema_name"),
			Database: r.str("catalog_name"),
			Owner:    r.str("schema_owner"),
			Comment:  r.str("comment"),
		})
	}
	return schemas, nil
}

// listTables reads reltuples and pg_total_relation_size inline, so no per
// table follow-up is needed. reltuples is -1 for never-analyzed tables.
func (c *postgresCatalog) listTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	base := `
		SELECT
			t.table_catalog,
			t.table_schema,
			t.table_name,
			t.table_type,
			cl.reltuples::bigint AS row_count,
			pg_total_relation_size(cl.oid) AS size_bytes,
			obj_description(cl.oid, 'pg_class') AS comment,
			cl.relkind::text AS relkind
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class cl ON cl.relname = t.table_name AND cl.relnamespace = n.oid
		WHERE t.table_type <> 'VIEW'
		  AND t.table_schema NOT IN ` + pgSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables := make([]models.Table, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, models.Table{
			Name:      r.str("table_name"),
			Schema:    r.str("table_schema"),
			Database:  r.str("table_catalog"),
			Type:      mapTableType(r.str("table_type")),
			RowCount:  nonNegative(r.int64Ptr("row_count")),
			SizeBytes: nonNegative(r.int64Ptr("size_bytes")),
			Comment:   r.str("comment"),
			Metadata:  r.metadata("relkind"),
		})
	}
	return tables, nil
}

func (c *postgresCatalog) listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	base := `
		SELECT
			col.table_catalog,
			col.table_schema,
			col.table_name,
			col.column_name,
			col.ordinal_position,
			col.data_type,
			col.udt_name,
			col.is_nullable,
			col.column_default,
			col.character_maximum_length,
			col.numeric_precision,
			col.numeric_scale,
			col_description(cl.oid, a.attnum) AS comment
		FROM information_schema.columns col
		LEFT JOIN pg_namespace n ON n.nspname = col.table_schema
		LEFT JOIN pg_class cl ON cl.relname = col.table_name AND cl.relnamespace = n.oid
		LEFT JOIN pg_attribute a ON a.attrelid = cl.oid AND a.attname = col.column_name
		WHERE col.table_schema NOT IN ` + pgSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)
	p.eq("table_name", table)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.ordinal_position"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return columnsFromRows(rows, "udt_name"), nil
}

// listViews returns plain views and materialized views.
func (c *postgresCatalog) listViews(ctx context.Context, database, schema string) ([]models.View, error) {
	base := `
		SELECT
			v.table_catalog::text AS table_catalog,
			v.table_schema::text AS table_schema,
			v.table_name::text AS table_name,
			v.view_definition::text AS view_definition,
			obj_description(cl.oid, 'pg_class') AS comment,
			false AS is_materialized
		FROM information_schema.views v
		LEFT JOIN pg_namespace n ON n.nspname = v.table_schema
		LEFT JOIN pg_class cl ON cl.relname = v.table_name AND cl.relnamespace = n.oid
		WHERE v.table_schema NOT IN ` + pgSystemSchemas + `
		UNION ALL
		SELECT
			current_database()::text,
			m.schemaname::text,
			m.matviewname::text,
			m.definition,
			obj_description(format('%I.%I', m.schemaname, m.matviewname)::regclass, 'pg_class'),
			true
		FROM pg_matviews m
		WHERE m.schemaname NOT IN ` + pgSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	return viewsFromRows(rows), nil
}

func (c *postgresCatalog) tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	const query = `
		SELECT
			s.n_live_tup AS row_count,
			pg_total_relation_size(s.relid) AS size_bytes
		FROM pg_stat_user_tables s
		WHERE s.schemaname = $1 AND s.relname = $2
	`
	rows, err := c.r.rows(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query table statistics: %w", err)
	}
	stats := &models.TableStatistics{
		Table:            table,
		Schema:           schema,
		Database:         database,
		ColumnStatistics: []models.ColumnStatistics{},
		LastUpdated:      time.Now(),
	}
	if len(rows) > 0 {
		stats.RowCount = rows[0].int64Value("row_count")
		stats.SizeBytes = rows[0].int64Ptr("size_bytes")
	}
	return stats, nil
}

func (c *postgresCatalog) listIndexes(ctx context.Context, database, schema string) ([]models.Index, error) {
	base := `
		SELECT
			current_database()::text AS table_catalog,
			n.nspname::text AS table_schema,
			t.relname::text AS table_name,
			i.relname::text AS index_name,
			ix.indisunique AS is_unique,
			ix.indisprimary AS is_primary,
			am.amname::text AS index_type,
			array_to_string(ARRAY(
				SELECT a.attname
				FROM unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
				ORDER BY k.ord
			), ',') AS column_names
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		WHERE n.nspname NOT IN ` + pgSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.index_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	return indexesFromRows(rows), nil
}

func (c *postgresCatalog) listForeignKeys(ctx context.Context, database, schema string) ([]models.ForeignKey, error) {
	base := `
		SELECT
			current_database()::text AS table_catalog,
			n.nspname::text AS table_schema,
			t.relname::text AS table_name,
			con.conname::text AS constraint_name,
			rn.nspname::text AS referenced_schema,
			rt.relname::text AS referenced_table,
			array_to_string(ARRAY(
				SELECT a.attname
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			), ',') AS column_names,
			array_to_string(ARRAY(
				SELECT a.attname
				FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			), ',') AS referenced_column_names,
			` + pgRefAction("con.confdeltype") + ` AS on_delete,
			` + pgRefAction("con.confupdtype") + ` AS on_update
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class rt ON rt.oid = con.confrelid
		JOIN pg_namespace rn ON rn.oid = rt.relnamespace
		WHERE con.contype = 'f'
		  AND n.nspname NOT IN ` + pgSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.constraint_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	fks := make([]models.ForeignKey, 0, len(rows))
	for _, r := range rows {
		db := r.str("table_catalog")
		fks = append(fks, models.ForeignKey{
			Name:               r.str("constraint_name"),
			Table:              r.str("table_name"),
			Schema:             r.str("table_schema"),
			Database:           db,
			Columns:            splitList(r.str("column_names")),
			ReferencedTable:    r.str("referenced_table"),
			ReferencedSchema:   r.str("referenced_schema"),
			ReferencedDatabase: db,
			ReferencedColumns:  splitList(r.str("referenced_column_names")),
			OnDelete:           r.str("on_delete"),
			OnUpdate:           r.str("on_update"),
		})
	}
	return fks, nil
}

func pgRefAction(column string) string {
	return `CASE ` + column + `
				WHEN 'a' THEN 'NO ACTION'
				WHEN 'r' THEN 'RESTRICT'
				WHEN 'c' THEN 'CASCADE'
				WHEN 'n' THEN 'SET NULL'
				WHEN 'd' THEN 'SET DEFAULT'
			END`
}

// columnsFromRows maps information_schema.columns shaped rows. extra names
// engine-specific result columns copied into Metadata.
func columnsFromRows(rows []row, extra ...string) []models.Column {
	cols := make([]models.Column, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, models.Column{
			Name:         r.str("column_name"),
			Table:        r.str("table_name"),
			Schema:       r.str("table_schema"),
			Database:     r.str("table_catalog"),
			Position:     int(r.int64Value("ordinal_position")),
			DataType:     r.str("data_type"),
			IsNullable:   r.boolValue("is_nullable"),
			DefaultValue: r.strPtr("column_default"),
			MaxLength:    nonNegative(r.int64Ptr("character_maximum_length")),
			Precision:    r.int64Ptr("numeric_precision"),
			Scale:        r.int64Ptr("numeric_scale"),
			Comment:      r.str("comment"),
			Metadata:     r.metadata(extra...),
		})
	}
	return cols
}

func viewsFromRows(rows []row) []models.View {
	views := make([]models.View, 0, len(rows))
	for _, r := range rows {
		views = append(views, models.View{
			Name:           r.str("table_name"),
			Schema:         r.str("table_schema"),
			Database:       r.str("table_catalog"),
			Definition:     r.str("view_definition"),
			Comment:        r.str("comment"),
			Created:        r.timePtr("created"),
			LastModified:   r.timePtr("last_altered"),
			IsMaterialized: r.boolValue("is_materialized"),
		})
	}
	return views
}

func indexesFromRows(rows []row) []models.Index {
	idx := make([]models.Index, 0, len(rows))
	for _, r := range rows {
		idx = append(idx, models.Index{
			Name:      r.str("index_name"),
			Table:     r.str("table_name"),
			Schema:    r.str("table_schema"),
			Database:  r.str("table_catalog"),
			Columns:   splitList(r.str("column_names")),
			IsUnique:  r.boolValue("is_unique"),
			IsPrimary: r.boolValue("is_primary"),
			Type:      r.str("index_type"),
		})
	}
	return idx
}
