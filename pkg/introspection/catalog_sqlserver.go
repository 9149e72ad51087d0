package introspection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

const sqlServerSystemDatabases = `('master', 'tempdb', 'model', 'msdb')`

const sqlServerSystemSchemas = `('sys', 'INFORMATION_SCHEMA', 'guest', 'db_owner', 'db_accessadmin',
	'db_securityadmin', 'db_ddladmin', 'db_backupoperator', 'db_datareader',
	'db_datawriter', 'db_denydatareader', 'db_denydatawriter')`

// sqlServerCatalog reads the sys catalog views of the connected database.
// Table sizes are looked up in bulk from sys.partitions and
// sys.allocation_units after listing.
type sqlServerCatalog struct {
	r *runner
}

var (
	_ catalog          = (*sqlServerCatalog)(nil)
	_ tableSizer       = (*sqlServerCatalog)(nil)
	_ indexLister      = (*sqlServerCatalog)(nil)
	_ foreignKeyLister = (*sqlServerCatalog)(nil)
)

func newSQLServerCatalog(r *runner) *sqlServerCatalog {
	return &sqlServerCatalog{r: r}
}

func (c *sqlServerCatalog) predicates() *predicates {
	return &predicates{placeholder: atPlaceholder}
}

func (c *sqlServerCatalog) listDatabases(ctx context.Context) ([]models.Database, error) {
	const query = `
		SELECT
			d.name,
			SUSER_SNAME(d.owner_sid) AS owner,
			d.create_date AS created,
			d.collation_name AS collation,
			d.compatibility_level,
			d.state_desc,
			d.recovery_model_desc
		FROM sys.databases d
		WHERE d.name NOT IN ` + sqlServerSystemDatabases + `
		ORDER BY d.name
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
			Created:  r.timePtr("created"),
			Metadata: r.metadata("collation", "compatibility_level", "state_desc", "recovery_model_desc"),
		})
	}
	return dbs, nil
}

func (c *sqlServerCatalog) listSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	base := `
		SELECT
			DB_NAME() AS catalog_name,
			s.name AS schema_name,
			USER_NAME(s.principal_id) AS schema_owner
		FROM sys.schemas s
		WHERE s.name NOT IN ` + sqlServerSystemSchemas
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
		})
	}
	return schemas, nil
}

func (c *sqlServerCatalog) listTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	base := `
		SELECT
			DB_NAME() AS table_catalog,
			s.name AS table_schema,
			o.name AS table_name,
			CASE o.type WHEN 'V' THEN 'VIEW' ELSE 'TABLE' END AS table_type,
			CAST(ep.value AS NVARCHAR(MAX)) AS comment,
			o.create_date AS created,
			o.modify_date AS last_altered
		FROM sys.objects o
		JOIN sys.schemas s ON s.schema_id = o.schema_id
		LEFT JOIN sys.extended_properties ep
		  ON ep.major_id = o.object_id AND ep.minor_id = 0
		 AND ep.class = 1 AND ep.name = 'MS_Description'
		WHERE o.type IN ('U', 'V')
		  AND o.is_ms_shipped = 0
		  AND s.name NOT IN ` + sqlServerSystemSchemas
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
			Name:         r.str("table_name"),
			Schema:       r.str("table_schema"),
			Database:     r.str("table_catalog"),
			Type:         mapTableType(r.str("table_type")),
			Comment:      r.str("comment"),
			Created:      r.timePtr("created"),
			LastModified: r.timePtr("last_altered"),
		})
	}
	return tables, nil
}

// tableSizes returns row counts and allocated bytes for every user table in
// one query. Pages are 8 KB.
func (c *sqlServerCatalog) tableSizes(ctx context.Context, tables []models.Table) (map[tableKey]tableSize, error) {
	if len(tables) == 0 {
		return map[tableKey]tableSize{}, nil
	}
	const query = `
		WITH row_counts AS (
			SELECT p.object_id, SUM(p.rows) AS row_count
			FROM sys.partitions p
			WHERE p.index_id IN (0, 1)
			GROUP BY p.object_id
		),
		allocated AS (
			SELECT p.object_id, SUM(a.total_pages) * 8192 AS size_bytes
			FROM sys.partitions p
			JOIN sys.allocation_units a ON a.container_id = p.partition_id
			GROUP BY p.object_id
		)
		SELECT
			DB_NAME() AS table_catalog,
			s.name AS table_schema,
			t.name AS table_name,
			rc.row_count,
			al.size_bytes
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		LEFT JOIN row_counts rc ON rc.object_id = t.object_id
		LEFT JOIN allocated al ON al.object_id = t.object_id
	`
	rows, err := c.r.rows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query table sizes: %w", err)
	}
	sizes := make(map[tableKey]tableSize, len(rows))
	for _, r := range rows {
		key := tableKey{
			database: r.str("table_catalog"),
			schema:   r.str("table_schema"),
			table:    r.str("table_name"),
		}
		sizes[key] = tableSize{
			rowCount:  r.int64Ptr("row_count"),
			sizeBytes: r.int64Ptr("size_bytes"),
		}
	}
	return sizes, nil
}

func (c *sqlServerCatalog) listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	base := `
		SELECT
			col.TABLE_CATALOG AS table_catalog,
			col.TABLE_SCHEMA AS table_schema,
			col.TABLE_NAME AS table_name,
			col.COLUMN_NAME AS column_name,
			col.ORDINAL_POSITION AS ordinal_position,
			col.DATA_TYPE AS data_type,
			col.IS_NULLABLE AS is_nullable,
			col.COLUMN_DEFAULT AS column_default,
			col.CHARACTER_MAXIMUM_LENGTH AS character_maximum_length,
			CAST(col.NUMERIC_PRECISION AS INT) AS numeric_precision,
			col.NUMERIC_SCALE AS numeric_scale,
			col.COLLATION_NAME AS collation_name,
			CAST(ep.value AS NVARCHAR(MAX)) AS comment,
			COLUMNPROPERTY(OBJECT_ID(QUOTENAME(col.TABLE_SCHEMA) + '.' + QUOTENAME(col.TABLE_NAME)),
			               col.COLUMN_NAME, 'IsIdentity') AS is_identity
		FROM INFORMATION_SCHEMA.COLUMNS col
		LEFT JOIN sys.extended_properties ep
		  ON ep.major_id = OBJECT_ID(QUOTENAME(col.TABLE_SCHEMA) + '.' + QUOTENAME(col.TABLE_NAME))
		 AND ep.minor_id = COLUMNPROPERTY(OBJECT_ID(QUOTENAME(col.TABLE_SCHEMA) + '.' + QUOTENAME(col.TABLE_NAME)),
		                                  col.COLUMN_NAME, 'ColumnId')
		 AND ep.class = 1 AND ep.name = 'MS_Description'
		WHERE col.TABLE_SCHEMA NOT IN ` + sqlServerSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)
	p.eq("table_name", table)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.ordinal_position"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	// CHARACTER_MAXIMUM_LENGTH is -1 for (MAX) types; columnsFromRows drops it.
	return columnsFromRows(rows, "collation_name", "is_identity"), nil
}

// listViews marks a view materialized when it has a clustered index.
func (c *sqlServerCatalog) listViews(ctx context.Context, database, schema string) ([]models.View, error) {
	base := `
		SELECT
			DB_NAME() AS table_catalog,
			s.name AS table_schema,
			v.name AS table_name,
			OBJECT_DEFINITION(v.object_id) AS view_definition,
			CAST(ep.value AS NVARCHAR(MAX)) AS comment,
			v.create_date AS created,
			v.modify_date AS last_altered,
			CASE WHEN EXISTS (
				SELECT 1 FROM sys.indexes i
				WHERE i.object_id = v.object_id AND i.index_id = 1
			) THEN 1 ELSE 0 END AS is_materialized
		FROM sys.views v
		JOIN sys.schemas s ON s.schema_id = v.schema_id
		LEFT JOIN sys.extended_properties ep
		  ON ep.major_id = v.object_id AND ep.minor_id = 0
		 AND ep.class = 1 AND ep.name = 'MS_Description'
		WHERE v.is_ms_shipped = 0
		  AND s.name NOT IN ` + sqlServerSystemSchemas
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	return viewsFromRows(rows), nil
}

func (c *sqlServerCatalog) tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	if schema == "" {
		schema = "dbo"
	}
	const query = `
		SELECT
			(SELECT SUM(p.rows) FROM sys.partitions p
			 WHERE p.object_id = t.object_id AND p.index_id IN (0, 1)) AS row_count,
			(SELECT SUM(a.total_pages) * 8192 FROM sys.partitions p
			 JOIN sys.allocation_units a ON a.container_id = p.partition_id
			 WHERE p.object_id = t.object_id) AS size_bytes
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1 AND t.name = @p2
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

func (c *sqlServerCatalog) listIndexes(ctx context.Context, database, schema string) ([]models.Index, error) {
	base := `
		SELECT
			DB_NAME() AS table_catalog,
			s.name AS table_schema,
			t.name AS table_name,
			i.name AS index_name,
			i.is_unique,
			i.is_primary_key AS is_primary,
			i.type_desc AS index_type,
			(SELECT STRING_AGG(c.name, ',') WITHIN GROUP (ORDER BY ic.key_ordinal)
			 FROM sys.index_columns ic
			 JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
			 WHERE ic.object_id = i.object_id AND ic.index_id = i.index_id
			   AND ic.is_included_column = 0) AS column_names
		FROM sys.indexes i
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE i.type > 0
		  AND t.is_ms_shipped = 0`
	p := c.predicates()
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.index_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	return indexesFromRows(rows), nil
}

func (c *sqlServerCatalog) listForeignKeys(ctx context.Context, database, schema string) ([]models.ForeignKey, error) {
	base := `
		SELECT
			DB_NAME() AS table_catalog,
			s.name AS table_schema,
			t.name AS table_name,
			fk.name AS constraint_name,
			rs.name AS referenced_schema,
			rt.name AS referenced_table,
			(SELECT STRING_AGG(c.name, ',') WITHIN GROUP (ORDER BY fkc.constraint_column_id)
			 FROM sys.foreign_key_columns fkc
			 JOIN sys.columns c ON c.object_id = fkc.parent_object_id AND c.column_id = fkc.parent_column_id
			 WHERE fkc.constraint_object_id = fk.object_id) AS column_names,
			(SELECT STRING_AGG(c.name, ',') WITHIN GROUP (ORDER BY fkc.constraint_column_id)
			 FROM sys.foreign_key_columns fkc
			 JOIN sys.columns c ON c.object_id = fkc.referenced_object_id AND c.column_id = fkc.referenced_column_id
			 WHERE fkc.constraint_object_id = fk.object_id) AS referenced_column_names,
			fk.delete_referential_action_desc AS on_delete,
			fk.update_referential_action_desc AS on_update
		FROM sys.foreign_keys fk
		JOIN sys.tables t ON t.object_id = fk.parent_object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
		JOIN sys.schemas rs ON rs.schema_id = rt.schema_id`
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
			OnDelete:           sqlServerRefAction(r.str("on_delete")),
			OnUpdate:           sqlServerRefAction(r.str("on_update")),
		})
	}
	return fks, nil
}

// sqlServerRefAction turns NO_ACTION into NO ACTION.
func sqlServerRefAction(desc string) string {
	return strings.ReplaceAll(desc, "_", " ")
}
