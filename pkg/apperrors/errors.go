package apperrors

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("conflict")
	ErrEmptyFilter               = errors.New("empty filter")
	ErrUnsupportedDatasourceType = errors.New("unsupported datasource type")
	ErrNoDefaultDatasource       = errors.New("no default datasource")
	ErrNotInitialized            = errors.New("adapter not initialized")
)
