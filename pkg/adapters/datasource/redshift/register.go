//go:build redshift || all_adapters

package redshift

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DataSourceRedshift,
			DisplayName: "Amazon Redshift",
			Description: "Connect to Redshift provisioned clusters and Redshift Serverless",
		},
		Factory: func(logger *zap.Logger) datasource.DatabaseAdapter {
			return NewAdapter(logger)
		},
	})
}
