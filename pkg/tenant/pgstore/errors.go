package pgstore

import "errors"

var (
	ErrNilTenant = errors.New("pgstore: tenant is required")
	ErrNilRecord = errors.New("pgstore: provisioning record is required")
)
