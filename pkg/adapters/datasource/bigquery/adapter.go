//go:build bigquery || all_adapters

package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	bq "cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// defaultJobTimeout applies when the caller passes no timeout.
const defaultJobTimeout = 60 * time.Second

// Adapter provides BigQuery connectivity. The configured project is the
// catalog's only database; datasets are its schemas.
type Adapter struct {
	config *Config
	client *bq.Client
	logger *zap.Logger
}

// NewAdapter returns an uninitialized adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{logger: logger}
}

// Initialize parses credentials and creates the client.
func (a *Adapter) Initialize(ctx context.Context, credentials map[string]any) error {
	cfg, err := FromMap(credentials)
	if err != nil {
		return fmt.Errorf("invalid bigquery credentials: %w", err)
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != nil:
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize BigQuery client: %w", err)
	}
	client.Location = cfg.Location

	a.config = cfg
	a.client = client
	a.logger.Debug("bigquery client ready",
		zap.String("project", cfg.ProjectID),
		zap.String("location", cfg.Location),
	)
	return nil
}

// Query runs standard SQL. Positional ? params are bound in order.
func (a *Adapter) Query(ctx context.Context, sql string, params []any, maxRows int, timeout time.Duration) (*datasource.QueryResult, error) {
	if a.client == nil {
		return nil, fmt.Errorf("bigquery adapter is not initialized")
	}
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()

	q := a.client.Query(sql)
	q.Location = a.config.Location
	q.JobTimeout = timeout
	for _, p := range params {
		q.Parameters = append(q.Parameters, bq.QueryParameter{Value: p})
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	result := &datasource.QueryResult{Rows: make([]map[string]any, 0)}
	for {
		var row map[string]bq.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating rows: %w", err)
		}
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.HasMoreRows = true
			break
		}
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, out)
	}

	result.Fields = fieldsFromSchema(it.Schema)
	result.RowCount = len(result.Rows)
	if it.TotalRows > 0 {
		total := int64(it.TotalRows)
		result.TotalRowCount = &total
	}
	return result, nil
}

// TestConnection runs a trivial query job.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if _, err := a.Query(ctx, "SELECT 1 AS ok", nil, 1, 30*time.Second); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the client.
func (a *Adapter) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

func (a *Adapter) GetDataSourceType() models.DataSourceType {
	return models.DataSourceBigQuery
}

// ProjectID is the billing and catalog project.
func (a *Adapter) ProjectID() string {
	if a.config == nil {
		return ""
	}
	return a.config.ProjectID
}

// Location is the region used for jobs and INFORMATION_SCHEMA views.
func (a *Adapter) Location() string {
	if a.config == nil {
		return DefaultLocation
	}
	return a.config.Location
}

func fieldsFromSchema(schema bq.Schema) []datasource.FieldInfo {
	fields := make([]datasource.FieldInfo, len(schema))
	for i, f := range schema {
		nullable := !f.Required
		fields[i] = datasource.FieldInfo{
			Name:     f.Name,
			Type:     string(f.Type),
			Nullable: &nullable,
		}
		if f.MaxLength > 0 {
			length := f.MaxLength
			fields[i].Length = &length
		}
		if f.Precision > 0 {
			precision, scale := f.Precision, f.Scale
			fields[i].Precision = &precision
			fields[i].Scale = &scale
		}
	}
	return fields
}

// normalizeValue flattens BigQuery civil and numeric types.
func normalizeValue(v bq.Value) any {
	switch val := v.(type) {
	case *big.Rat:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return f
	case []byte:
		return string(val)
	case time.Time:
		return val
	case fmt.Stringer:
		// civil.Date, civil.DateTime, civil.Time
		return val.String()
	default:
		return val
	}
}

var _ datasource.ProjectScopedAdapter = (*Adapter)(nil)
