package lucidic

import (
	"github.com/lucidicai/lucidic-go/internal/config"
	"github.com/lucidicai/lucidic-go/internal/sdkerrors"
)

// Error type re-exports so callers can errors.As against the public
// surface without reaching into internal packages (spec.md §7's taxonomy).
type (
	ConfigError             = config.Error
	AuthenticationError     = sdkerrors.AuthenticationError
	QuotaError              = sdkerrors.QuotaError
	TransportError          = sdkerrors.OperationalError
	UnreachableBackendError = sdkerrors.UnreachableBackendError
	DispatchError           = sdkerrors.DispatchError
)
