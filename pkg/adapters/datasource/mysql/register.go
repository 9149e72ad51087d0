//go:build mysql || all_adapters

package mysql

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DataSourceMySQL,
			DisplayName: "MySQL",
			Description: "Connect to MySQL 8+, MariaDB, Aurora MySQL",
		},
		Factory: func(logger *zap.Logger) datasource.DatabaseAdapter {
			return NewAdapter(logger)
		},
	})
}
