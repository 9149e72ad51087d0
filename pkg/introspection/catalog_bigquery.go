package introspection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/statsquery"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

const defaultBigQueryRegion = "us"

// bigQueryCatalog maps the project to the single database and datasets to
// schemas. Listings read the region-qualified INFORMATION_SCHEMA; sizes come
// from each dataset's __TABLES__ meta-table.
type bigQueryCatalog struct {
	r        *runner
	project  string
	location string
}

var (
	_ catalog    = (*bigQueryCatalog)(nil)
	_ tableSizer = (*bigQueryCatalog)(nil)
)

func newBigQueryCatalog(r *runner, project, location string) *bigQueryCatalog {
	return &bigQueryCatalog{r: r, project: project, location: location}
}

// infoSchema returns `project`.`region-xx`.INFORMATION_SCHEMA.<view>.
func (c *bigQueryCatalog) infoSchema(view string) string {
	region := strings.ToLower(strings.TrimSpace(c.location))
	if region == "" {
		region = defaultBigQueryRegion
	}
	return statsquery.QuoteBigQuery(c.project) + "." +
		statsquery.QuoteBigQuery("region-"+region) + ".INFORMATION_SCHEMA." + view
}

// inProject reports whether database names this project. Other databases
// have nothing to list.
func (c *bigQueryCatalog) inProject(database string) bool {
	return database == "" || database == c.project
}

func (c *bigQueryCatalog) predicates() *predicates {
	return &predicates{placeholder: questionPlaceholder}
}

func (c *bigQueryCatalog) listDatabases(context.Context) ([]models.Database, error) {
	return []models.Database{{
		Name:     c.project,
		Metadata: map[string]any{"location": c.location},
	}}, nil
}

func (c *bigQueryCatalog) listSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	if !c.inProject(database) {
		return nil, nil
	}
	base := `
		SELECT catalog_name, schema_name, location, creation_time, last_modified_time
		FROM ` + c.infoSchema("SCHEMATA")
	rows, err := c.r.rows(ctx, (&predicates{}).scoped(base, "q.schema_name"))
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	schemas := make([]models.Schema, 0, len(rows))
	for _, r := range rows {
		schemas = append(schemas, models.Schema{
			Name:         r.str("schema_name"),
			Database:     c.project,
			Created:      r.timePtr("creation_time"),
			LastModified: r.timePtr("last_modified_time"),
			Metadata:     r.metadata("location"),
		})
	}
	return schemas, nil
}

func (c *bigQueryCatalog) listTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	if !c.inProject(database) {
		return nil, nil
	}
	base := `
		SELECT
			t.table_schema,
			t.table_name,
			t.table_type,
			t.creation_time,
			ck.clustering_keys
		FROM ` + c.infoSchema("TABLES") + ` t
		LEFT JOIN (
			SELECT table_schema, table_name,
			       STRING_AGG(column_name, ',' ORDER BY clustering_ordinal_position) AS clustering_keys
			FROM ` + c.infoSchema("COLUMNS") + `
			WHERE clustering_ordinal_position IS NOT NULL
			GROUP BY table_schema, table_name
		) ck ON ck.table_schema = t.table_schema AND ck.table_name = t.table_name`
	p := c.predicates()
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables := make([]models.Table, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, models.Table{
			Name:           r.str("table_name"),
			Schema:         r.str("table_schema"),
			Database:       c.project,
			Type:           mapTableType(r.str("table_type")),
			Created:        r.timePtr("creation_time"),
			ClusteringKeys: splitList(r.str("clustering_keys")),
		})
	}
	return tables, nil
}

// tableSizes reads __TABLES__ once per dataset that appears in tables.
func (c *bigQueryCatalog) tableSizes(ctx context.Context, tables []models.Table) (map[tableKey]tableSize, error) {
	seen := make(map[string]struct{})
	var datasets []string
	for _, t := range tables {
		if _, ok := seen[t.Schema]; ok || t.Schema == "" {
			continue
		}
		seen[t.Schema] = struct{}{}
		datasets = append(datasets, t.Schema)
	}
	sort.Strings(datasets)

	type sized struct {
		key  tableKey
		size tableSize
	}
	all, err := fanOut(ctx, c.r, "table sizes", datasets, func(ctx context.Context, dataset string) ([]sized, error) {
		query := `
			SELECT table_id, row_count, size_bytes, last_modified_time
			FROM ` + statsquery.QuoteBigQuery(c.project) + "." + statsquery.QuoteBigQuery(dataset) + `.__TABLES__`
		rows, err := c.r.rows(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query __TABLES__ for %s: %w", dataset, err)
		}
		out := make([]sized, 0, len(rows))
		for _, r := range rows {
			s := tableSize{
				rowCount:  r.int64Ptr("row_count"),
				sizeBytes: r.int64Ptr("size_bytes"),
			}
			if ms := r.int64Ptr("last_modified_time"); ms != nil {
				t := time.UnixMilli(*ms).UTC()
				s.lastModified = &t
			}
			out = append(out, sized{
				key:  tableKey{database: c.project, schema: dataset, table: r.str("table_id")},
				size: s,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	sizes := make(map[tableKey]tableSize, len(all))
	for _, s := range all {
		sizes[s.key] = s.size
	}
	return sizes, nil
}

func (c *bigQueryCatalog) listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	if !c.inProject(database) {
		return nil, nil
	}
	base := `
		SELECT
			table_catalog,
			table_schema,
			table_name,
			column_name,
			ordinal_position,
			data_type,
			is_nullable,
			column_default,
			is_partitioning_column,
			clustering_ordinal_position
		FROM ` + c.infoSchema("COLUMNS")
	p := c.predicates()
	p.eq("table_schema", schema)
	p.eq("table_name", table)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name, q.ordinal_position"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	cols := columnsFromRows(rows, "is_partitioning_column", "clustering_ordinal_position")
	for i := range cols {
		// BigQuery reports the literal string NULL for columns without a default.
		if d := cols[i].DefaultValue; d != nil && strings.EqualFold(*d, "NULL") {
			cols[i].DefaultValue = nil
		}
	}
	return cols, nil
}

func (c *bigQueryCatalog) listViews(ctx context.Context, database, schema string) ([]models.View, error) {
	if !c.inProject(database) {
		return nil, nil
	}
	base := `
		SELECT
			v.table_catalog,
			v.table_schema,
			v.table_name,
			v.view_definition,
			t.creation_time AS created,
			t.table_type = 'MATERIALIZED VIEW' AS is_materialized
		FROM (
			SELECT table_catalog, table_schema, table_name, view_definition
			FROM ` + c.infoSchema("VIEWS") + `
			UNION ALL
			SELECT table_catalog, table_schema, table_name, mv.ddl AS view_definition
			FROM ` + c.infoSchema("TABLES") + ` mv
			WHERE mv.table_type = 'MATERIALIZED VIEW'
		) v
		JOIN ` + c.infoSchema("TABLES") + ` t
		  ON t.table_schema = v.table_schema AND t.table_name = v.table_name`
	p := c.predicates()
	p.eq("table_schema", schema)

	rows, err := c.r.rows(ctx, p.scoped(base, "q.table_schema, q.table_name"), p.args...)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	return viewsFromRows(rows), nil
}

func (c *bigQueryCatalog) tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	query := `
		SELECT row_count, size_bytes
		FROM ` + statsquery.QuoteBigQuery(c.project) + "." + statsquery.QuoteBigQuery(schema) + `.__TABLES__
		WHERE table_id = ?`
	rows, err := c.r.rows(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query table statistics: %w", err)
	}
	if database == "" {
		database = c.project
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
