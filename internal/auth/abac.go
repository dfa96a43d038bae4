package auth

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/rbac-service/internal"
)

// OwnershipPolicy is a small attribute-based check layered on RBAC: the owner
// of a resource may act on it, anyone else needs an explicit permission.
type OwnershipPolicy struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewOwnershipPolicy(resolver Resolver, logger *slog.Logger) *OwnershipPolicy {
	return &OwnershipPolicy{resolver: resolver, logger: logger}
}

// AllowOwnerOr returns nil when subject owns the resource or holds
// permission, and Forbidden otherwise.
func (p *OwnershipPolicy) AllowOwnerOr(ctx context.Context, subject *internal.Subject, ownerID int64, permission string) error {
	if subject == nil {
		return internal.ErrMissingToken
	}
	if subject.UserID == ownerID {
		return nil
	}

	perms, err := p.resolver.ResolvePermissions(ctx, subject.UserID)
	if err != nil {
		p.logger.Error("ownership check resolution failed", "user_id", subject.UserID, "error", err)
		return internal.ErrForbidden.WithCause(err)
	}
	if AnyPermission(permission).Satisfied(perms) {
		return nil
	}
	return internal.ErrForbidden
}
