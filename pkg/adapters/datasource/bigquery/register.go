//go:build bigquery || all_adapters

package bigquery

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DataSourceBigQuery,
			DisplayName: "Google BigQuery",
			Description: "Connect to BigQuery with a service-account key or application default credentials",
		},
		Factory: func(logger *zap.Logger) datasource.DatabaseAdapter {
			return NewAdapter(logger)
		},
	})
}
