package payments

import (
	"pixgate/providers"
	"pixgate/utility"
)

var (
	ErrDuplicateExternalID = utility.Err("external_id already used by this merchant")
	ErrNoProvider          = providers.ErrNoProvider
	ErrNotFound            = utility.Err("transaction not found")
	ErrForbidden           = utility.Err("access to transaction denied")
	ErrInvalidRequest      = utility.Err("invalid request")
	ErrProviderFailure     = utility.Err("provider failed to process the operation")
)
