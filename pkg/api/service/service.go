// Package service holds the transport-agnostic use cases of the configurine API. REST and
// gRPC handlers decode requests, call a service with the caller identity, and encode the result.
package service

import (
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// requireIdentity fails for anonymous callers.
func requireIdentity(caller *types.Identity) error {
	if caller == nil {
		return types.NewAuthError("authentication required")
	}
	return nil
}

// requireAdmin fails for anonymous and non-admin callers.
func requireAdmin(caller *types.Identity) error {
	if err := requireIdentity(caller); err != nil {
		return err
	}
	if !caller.IsAdmin {
		return types.NewForbiddenError("admin privileges required")
	}
	return nil
}

func componentLogger(logger log.Logger, component string) log.Logger {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return logger.WithComponent(component)
}
