package introspection

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// redshiftCatalog shares the Postgres information_schema queries for schemas
// and columns. Sizes come from svv_table_info, which reports size in 1 MB
// blocks. Redshift has no indexes and its constraints are informational, so
// neither capability is offered.
type redshiftCatalog struct {
	r  *runner
	pg *postgresCatalog
}

var _ catalog = (*redshiftCatalog)(nil)

func newRedshiftCatalog(r *runner) *redshiftCatalog {
	return &redshiftCatalog{r: r, pg: newPostgresCatalog(r)}
}

func (c *redshiftCatalog) listDatabases(ctx context.Context) ([]models.Database, error) {
	const query = `
		SELECT
			database_name AS name,
			database_owner AS owner_id,
			database_type,
			connection_limit
		FROM svv_redshift_databases
		ORDER BY database_name
	`
	rows, err := c.r.rows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	dbs := make([]models.Database, 0, len(rows))
	for _, r := range rows {
		dbs = append(dbs, models.Database{
			Name:     r.str("name"),
			Metadata: r.metadata("owner_id", "database_type", "connection_limit"),
		})
	}
	return dbs, nil
}

func (c *redshiftCatalog) listSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	return c.pg.listSchemas(ctx, database)
}

func (c *redshiftCatalog) listTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	base := `
		SELECT
			t.table_catalog::varchar AS table_catalog,
			t.table_schema::varchar AS table_schema,
			t.table_name::varchar AS table_name,
			t.table_type::varchar AS table_type,
			ti.tbl_rows::bigint AS row_count,
			ti.size::bigint * 1048576 AS size_bytes,
			ti.diststyle::varchar AS diststyle,
			ti.sortkey1::varchar AS sortkey1
		FROM information_schema.tables t
		LEFT JOIN svv_table_info ti ON ti.schema = t.table_schema AND ti."table" = t.table_name
		WHERE t.table_type <> 'VIEW'
		  AND t.table_schema NOT IN ` + pgSystemSchemas
	p := &predicates{placeholder: dollarPlaceholder}
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables := make([]models.Table, 0, len(rows))
	for _, r := range rows {
		t := models.Table{
			Name:      r.str("table_name"),
			Schema:    r.str("table_schema"),
			Database:  r.str("table_catalog"),
			Type:      mapTableType(r.str("table_type")),
			RowCount:  nonNegative(r.int64Ptr("row_count")),
			SizeBytes: nonNegative(r.int64Ptr("size_bytes")),
			Metadata:  r.metadata("diststyle"),
		}
		if sk := r.str("sortkey1"); sk != "" {
			t.ClusteringKeys = []string{sk}
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (c *redshiftCatalog) listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	base := `
		SELECT
			table_catalog::varchar AS table_catalog,
			table_schema::varchar AS table_schema,
			table_name::varchar AS table_name,
			column_name::varchar AS column_name,
			ordinal_position,
			data_type::varchar AS data_type,
			is_nullable::varchar AS is_nullable,
			column_default::varchar AS column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale
		FROM information_schema.columns
		WHERE table_schema NOT IN ` + pgSystemSchemas
	p := &predicates{placeholder: dollarPlaceholder}
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)
	p.eq("table_name", table)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.ordinal_position"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return columnsFromRows(rows), nil
}

func (c *redshiftCatalog) listViews(ctx context.Context, database, schema string) ([]models.View, error) {
	base := `
		SELECT
			table_catalog::varchar AS table_catalog,
			table_schema::varchar AS table_schema,
			table_name::varchar AS table_name,
			view_definition::varchar(65535) AS view_definition
		FROM information_schema.views
		WHERE table_schema NOT IN ` + pgSystemSchemas
	p := &predicates{placeholder: dollarPlaceholder}
	p.eq("table_catalog", database)
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	return viewsFromRows(rows), nil
}

func (c *redshiftCatalog) tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	const query = `
		SELECT
			tbl_rows::bigint AS row_count,
			size::bigint * 1048576 AS size_bytes
		FROM svv_table_info
		WHERE schema = $1 AND "table" = $2
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
