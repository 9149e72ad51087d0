//go:build mssql || all_adapters

package mssql

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DataSourceSQLServer,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
		},
		Factory: func(logger *zap.Logger) datasource.DatabaseAdapter {
			return NewAdapter(logger)
		},
	})
}
