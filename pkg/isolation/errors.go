package isolation

import "errors"

var (
	ErrNilTenant          = errors.New("isolation: nil tenant")
	ErrUnknownMode        = errors.New("isolation: tenant has no isolation mode")
	ErrDatabaseSetup      = errors.New("isolation: database setup failed")
	ErrStorageSetup       = errors.New("isolation: storage setup failed")
	ErrCacheSetup         = errors.New("isolation: cache setup failed")
	ErrCleanup            = errors.New("isolation: cleanup failed")
	ErrNoConnectionString = errors.New("isolation: tenant has no connection string")
	ErrInvalidMasterURL   = errors.New("isolation: master connection string must be a postgres URL")
	ErrNamespaceTaken     = errors.New("isolation: cache namespace belongs to another tenant")
	ErrConnectionFailed   = errors.New("isolation: failed to open tenant connection")
	ErrClosed             = errors.New("isolation: service closed")
)
