package introspection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/statsquery"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// snowflakeCatalog reads each database's INFORMATION_SCHEMA. Unscoped listings
// fan out over every visible database; a database the role cannot read is
// skipped. Result column names come back upper case.
type snowflakeCatalog struct {
	r *runner
}

var _ catalog = (*snowflakeCatalog)(nil)

func newSnowflakeCatalog(r *runner) *snowflakeCatalog {
	return &snowflakeCatalog{r: r}
}

func (c *snowflakeCatalog) infoSchema(database, view string) string {
	return statsquery.QuoteSnowflake(database) + ".INFORMATION_SCHEMA." + view
}

// scopes returns the databases to read: the named one, or all of them.
func (c *snowflakeCatalog) scopes(ctx context.Context, database string) ([]string, error) {
	if database != "" {
		return []string{database}, nil
	}
	dbs, err := c.listDatabases(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dbs))
	for i, db := range dbs {
		names[i] = db.Name
	}
	return names, nil
}

func (c *snowflakeCatalog) listDatabases(ctx context.Context) ([]models.Database, error) {
	rows, err := c.r.rows(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("show databases: %w", err)
	}
	dbs := make([]models.Database, 0, len(rows))
	for _, r := range rows {
		md := r.metadata("retention_time", "origin", "kind")
		if md == nil {
			md = map[string]any{}
		}
		md["is_default"] = r.boolValue("is_default")
		md["is_current"] = r.boolValue("is_current")
		dbs = append(dbs, models.Database{
			Name:         r.str("name"),
			Owner:        r.str("owner"),
			Comment:      r.str("comment"),
			Created:      r.timePtr("created_on"),
			LastModified: r.timePtr("last_altered"),
			Metadata:     md,
		})
	}
	return dbs, nil
}

func (c *snowflakeCatalog) listSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	dbs, err := c.scopes(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("list databases for schemas: %w", err)
	}
	return fanOut(ctx, c.r, "schemas", dbs, func(ctx context.Context, db string) ([]models.Schema, error) {
		query := `
			SELECT CATALOG_NAME, SCHEMA_NAME, SCHEMA_OWNER, COMMENT, CREATED, LAST_ALTERED
			FROM ` + c.infoSchema(db, "SCHEMATA") + `
			WHERE SCHEMA_NAME <> 'INFORMATION_SCHEMA'
			ORDER BY SCHEMA_NAME`
		rows, err := c.r.rows(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query schemas in %s: %w", db, err)
		}
		schemas := make([]models.Schema, 0, len(rows))
		for _, r := range rows {
			dbName := r.str("CATALOG_NAME")
			if dbName == "" {
				dbName = db
			}
			schemas = append(schemas, models.Schema{
				Name:         r.str("SCHEMA_NAME"),
				Database:     dbName,
				Owner:        r.str("SCHEMA_OWNER"),
				Comment:      r.str("COMMENT"),
				Created:      r.timePtr("CREATED"),
				LastModified: r.timePtr("LAST_ALTERED"),
			})
		}
		return schemas, nil
	})
}

func (c *snowflakeCatalog) listTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	dbs, err := c.scopes(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("list databases for tables: %w", err)
	}
	return fanOut(ctx, c.r, "tables", dbs, func(ctx context.Context, db string) ([]models.Table, error) {
		base := `
			SELECT TABLE_CATALOG, TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE,
			       ROW_COUNT, BYTES, COMMENT, CREATED, LAST_ALTERED, CLUSTERING_KEY
			FROM ` + c.infoSchema(db, "TABLES") + `
			WHERE TABLE_SCHEMA <> 'INFORMATION_SCHEMA'`
		p := &predicates{placeholder: questionPlaceholder}
		p.eq("TABLE_SCHEMA", schema)
		rows, err := c.r.rows(ctx, p.scoped(base, "q.TABLE_SCHEMA, q.TABLE_NAME"), p.args...)
		if err != nil {
			return nil, fmt.Errorf("query tables in %s: %w", db, err)
		}
		tables := make([]models.Table, 0, len(rows))
		for _, r := range rows {
			dbName := r.str("TABLE_CATALOG")
			if dbName == "" {
				dbName = db
			}
			tables = append(tables, models.Table{
				Name:           r.str("TABLE_NAME"),
				Schema:         r.str("TABLE_SCHEMA"),
				Database:       dbName,
				Type:           mapTableType(r.str("TABLE_TYPE")),
				RowCount:       r.int64Ptr("ROW_COUNT"),
				SizeBytes:      r.int64Ptr("BYTES"),
				Comment:        r.str("COMMENT"),
				Created:        r.timePtr("CREATED"),
				LastModified:   r.timePtr("LAST_ALTERED"),
				ClusteringKeys: parseClusteringKey(r.str("CLUSTERING_KEY")),
			})
		}
		return tables, nil
	})
}

// parseClusteringKey turns "LINEAR(region, created_at)" into its column list.
func parseClusteringKey(key string) []string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if open := strings.Index(key, "("); open >= 0 && strings.HasSuffix(key, ")") {
		key = key[open+1 : len(key)-1]
	}
	return splitList(key)
}

func (c *snowflakeCatalog) listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	dbs, err := c.scopes(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("list databases for columns: %w", err)
	}
	return fanOut(ctx, c.r, "columns", dbs, func(ctx context.Context, db string) ([]models.Column, error) {
		base := `
			SELECT TABLE_CATALOG, TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME,
			       ORDINAL_POSITION, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT,
			       CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, COMMENT,
			       IS_IDENTITY
			FROM ` + c.infoSchema(db, "COLUMNS") + `
			WHERE TABLE_SCHEMA <> 'INFORMATION_SCHEMA'`
		p := &predicates{placeholder: questionPlaceholder}
		p.eq("TABLE_SCHEMA", schema)
		p.eq("TABLE_NAME", table)
		rows, err := c.r.rows(ctx, p.scoped(base, "q.TABLE_SCHEMA, q.TABLE_NAME, q.ORDINAL_POSITION"), p.args...)
		if err != nil {
			return nil, fmt.Errorf("query columns in %s: %w", db, err)
		}
		cols := columnsFromRows(rows, "IS_IDENTITY")
		for i := range cols {
			if cols[i].Database == "" {
				cols[i].Database = db
			}
		}
		return cols, nil
	})
}

func (c *snowflakeCatalog) listViews(ctx context.Context, database, schema string) ([]models.View, error) {
	dbs, err := c.scopes(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("list databases for views: %w", err)
	}
	return fanOut(ctx, c.r, "views", dbs, func(ctx context.Context, db string) ([]models.View, error) {
		base := `
			SELECT TABLE_CATALOG, TABLE_SCHEMA, TABLE_NAME, VIEW_DEFINITION, COMMENT,
			       CREATED, LAST_ALTERED
			FROM ` + c.infoSchema(db, "VIEWS") + `
			WHERE TABLE_SCHEMA <> 'INFORMATION_SCHEMA'`
		p := &predicates{placeholder: questionPlaceholder}
		p.eq("TABLE_SCHEMA", schema)
		rows, err := c.r.rows(ctx, p.scoped(base, "q.TABLE_SCHEMA, q.TABLE_NAME"), p.args...)
		if err != nil {
			return nil, fmt.Errorf("query views in %s: %w", db, err)
		}
		views := viewsFromRows(rows)
		for i := range views {
			if views[i].Database == "" {
				views[i].Database = db
			}
		}
		return views, nil
	})
}

func (c *snowflakeCatalog) tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	query := `
		SELECT ROW_COUNT, BYTES
		FROM ` + c.infoSchema(database, "TABLES") + `
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`
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
		stats.RowCount = rows[0].int64Value("ROW_COUNT")
		stats.SizeBytes = rows[0].int64Ptr("BYTES")
	}
	return stats, nil
}
