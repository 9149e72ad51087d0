package models

import (
	"time"

	"github.com/google/uuid"
)

// TableType classifies catalog relations.
type TableType string

const (
	TableTypeTable            TableType = "TABLE"
	TableTypeView             TableType = "VIEW"
	TableTypeMaterializedView TableType = "MATERIALIZED_VIEW"
	TableTypeExternal         TableType = "EXTERNAL_TABLE"
	TableTypeTemporary        TableType = "TEMPORARY_TABLE"
)

// StatisticsStatus records whether column statistics were computed for a column.
// The zero value means statistics were never attempted.
type StatisticsStatus string

const (
	StatisticsNotAttempted StatisticsStatus = ""
	StatisticsComputed     StatisticsStatus = "computed"
	StatisticsFailed       StatisticsStatus = "failed"
)

// Database is the root of the catalog hierarchy. For MySQL a database and a
// schema are the same object.
type Database struct {
	Name         string         `json:"name" yaml:"name"`
	Owner        string         `json:"owner,omitempty" yaml:"owner,omitempty"`
	Comment      string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Created      *time.Time     `json:"created,omitempty" yaml:"created,omitempty"`
	LastModified *time.Time     `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Schema belongs to exactly one Database, referenced by name.
type Schema struct {
	Name         string         `json:"name" yaml:"name"`
	Database     string         `json:"database" yaml:"database"`
	Owner        string         `json:"owner,omitempty" yaml:"owner,omitempty"`
	Comment      string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Created      *time.Time     `json:"created,omitempty" yaml:"created,omitempty"`
	LastModified *time.Time     `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Table belongs to one Schema and Database, referenced by name.
type Table struct {
	Name           string         `json:"name" yaml:"name"`
	Schema         string         `json:"schema" yaml:"schema"`
	Database       string         `json:"database" yaml:"database"`
	Type           TableType      `json:"type" yaml:"type"`
	RowCount       *int64         `json:"row_count,omitempty" yaml:"row_count,omitempty"`
	SizeBytes      *int64         `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	Comment        string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Created        *time.Time     `json:"created,omitempty" yaml:"created,omitempty"`
	LastModified   *time.Time     `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	ClusteringKeys []string       `json:"clustering_keys,omitempty" yaml:"clustering_keys,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Column describes one table column. The statistics fields stay nil until
// statistics are attached.
type Column struct {
	Name         string         `json:"name" yaml:"name"`
	Table        string         `json:"table" yaml:"table"`
	Schema       string         `json:"schema" yaml:"schema"`
	Database     string         `json:"database" yaml:"database"`
	Position     int            `json:"position" yaml:"position"`
	DataType     string         `json:"data_type" yaml:"data_type"`
	IsNullable   bool           `json:"is_nullable" yaml:"is_nullable"`
	DefaultValue *string        `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	MaxLength    *int64         `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Precision    *int64         `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale        *int64         `json:"scale,omitempty" yaml:"scale,omitempty"`
	Comment      string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	DistinctCount    *int64           `json:"distinct_count,omitempty" yaml:"distinct_count,omitempty"`
	NullCount        *int64           `json:"null_count,omitempty" yaml:"null_count,omitempty"`
	MinValue         *string          `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue         *string          `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	SampleValues     *string          `json:"sample_values,omitempty" yaml:"sample_values,omitempty"`
	StatisticsStatus StatisticsStatus `json:"statistics_status,omitempty" yaml:"statistics_status,omitempty"`
}

// View holds the view definition exactly as the engine stores it.
type View struct {
	Name           string         `json:"name" yaml:"name"`
	Schema         string         `json:"schema" yaml:"schema"`
	Database       string         `json:"database" yaml:"database"`
	Definition     string         `json:"definition" yaml:"definition"`
	Comment        string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Created        *time.Time     `json:"created,omitempty" yaml:"created,omitempty"`
	LastModified   *time.Time     `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	IsMaterialized bool           `json:"is_materialized,omitempty" yaml:"is_materialized,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Index is a secondary or primary index on a table.
type Index struct {
	Name      string   `json:"name" yaml:"name"`
	Table     string   `json:"table" yaml:"table"`
	Schema    string   `json:"schema" yaml:"schema"`
	Database  string   `json:"database" yaml:"database"`
	Columns   []string `json:"columns" yaml:"columns"`
	IsUnique  bool     `json:"is_unique" yaml:"is_unique"`
	IsPrimary bool     `json:"is_primary" yaml:"is_primary"`
	Type      string   `json:"type,omitempty" yaml:"type,omitempty"`
}

// ForeignKey is a declared referential constraint.
type ForeignKey struct {
	Name               string   `json:"name" yaml:"name"`
	Table              string   `json:"table" yaml:"table"`
	Schema             string   `json:"schema" yaml:"schema"`
	Database           string   `json:"database" yaml:"database"`
	Columns            []string `json:"columns" yaml:"columns"`
	ReferencedTable    string   `json:"referenced_table" yaml:"referenced_table"`
	ReferencedSchema   string   `json:"referenced_schema" yaml:"referenced_schema"`
	ReferencedDatabase string   `json:"referenced_database" yaml:"referenced_database"`
	ReferencedColumns  []string `json:"referenced_columns" yaml:"referenced_columns"`
	OnDelete           string   `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
	OnUpdate           string   `json:"on_update,omitempty" yaml:"on_update,omitempty"`
}

// ColumnStatistics is the per-column output of one statistics query.
type ColumnStatistics struct {
	ColumnName    string           `json:"column_name" yaml:"column_name"`
	DistinctCount *int64           `json:"distinct_count,omitempty" yaml:"distinct_count,omitempty"`
	NullCount     *int64           `json:"null_count,omitempty" yaml:"null_count,omitempty"`
	MinValue      *string          `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue      *string          `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	SampleValues  *string          `json:"sample_values,omitempty" yaml:"sample_values,omitempty"`
	Status        StatisticsStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// TableStatistics holds table-level counters. ColumnStatistics is left empty by
// the basic table statistics lookup.
type TableStatistics struct {
	Table            string             `json:"table" yaml:"table"`
	Schema           string             `json:"schema" yaml:"schema"`
	Database         string             `json:"database" yaml:"database"`
	RowCount         int64              `json:"row_count" yaml:"row_count"`
	SizeBytes        *int64             `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	ColumnStatistics []ColumnStatistics `json:"column_statistics" yaml:"column_statistics"`
	LastUpdated      time.Time          `json:"last_updated" yaml:"last_updated"`
}

// IntrospectionOptions scopes a full introspection. A nil slice means "no
// filter"; a non-nil empty slice is rejected.
type IntrospectionOptions struct {
	Databases []string `json:"databases,omitempty" yaml:"databases,omitempty"`
	Schemas   []string `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Tables    []string `json:"tables,omitempty" yaml:"tables,omitempty"`
}

// DataSourceIntrospectionResult is an immutable snapshot of one data source.
type DataSourceIntrospectionResult struct {
	ID             uuid.UUID      `json:"id" yaml:"id"`
	DataSourceName string         `json:"data_source_name" yaml:"data_source_name"`
	DataSourceType DataSourceType `json:"data_source_type" yaml:"data_source_type"`
	Databases      []Database     `json:"databases" yaml:"databases"`
	Schemas        []Schema       `json:"schemas" yaml:"schemas"`
	Tables         []Table        `json:"tables" yaml:"tables"`
	Columns        []Column       `json:"columns" yaml:"columns"`
	Views          []View         `json:"views" yaml:"views"`
	Indexes        []Index        `json:"indexes" yaml:"indexes"`
	ForeignKeys    []ForeignKey   `json:"foreign_keys" yaml:"foreign_keys"`
	IntrospectedAt time.Time      `json:"introspected_at" yaml:"introspected_at"`
}
