// Package authz resuelve capacidades del actor a partir del rol y las ubicaciones del token.
package authz

import (
	"slices"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

var _ inventory.Authorizer = RoleAuthorizer{}

// RoleAuthorizer admin: todo; manager: sus ubicaciones y aprobar correcciones; clerk: solo sus ubicaciones.
type RoleAuthorizer struct{}

func (RoleAuthorizer) CanMutateStock(actor entity.Actor, locationID string) bool {
	switch actor.Role {
	case entity.RoleAdmin:
		return true
	case entity.RoleManager, entity.RoleClerk:
		return locationID != "" && slices.Contains(actor.LocationIDs, locationID)
	default:
		return false
	}
}

func (RoleAuthorizer) CanApproveCorrections(actor entity.Actor) bool {
	return actor.Role == entity.RoleAdmin || actor.Role == entity.RoleManager
}
