package rbac_test

import (
	"context"

	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Bootstrap", func() {
	var (
		ctx context.Context
		svc *rbac.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = rbac.NewService(rbacPostgres.NewGraphRepository(openDB()), "user", logger.Discard())
	})

	It("creates the reference catalog and is idempotent", func() {
		first, err := svc.Bootstrap(ctx, rbac.DefaultPermissions, rbac.DefaultCatalog)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(HaveKey("admin"))
		Expect(first).To(HaveKey("moderator"))
		Expect(first).To(HaveKey("user"))

		second, err := svc.Bootstrap(ctx, rbac.DefaultPermissions, rbac.DefaultCatalog)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))

		perms, err := svc.ListPermissions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(perms).To(HaveLen(len(rbac.DefaultPermissions)))

		admin, err := svc.RoleWithPermissions(ctx, first["admin"].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(admin.Permissions).To(HaveLen(len(rbac.DefaultPermissions)))

		user, err := svc.RoleWithPermissions(ctx, first["user"].ID)
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(user.Permissions))
		for _, p := range user.Permissions {
			names = append(names, p.Name)
		}
		Expect(names).To(ConsistOf(rbac.PermCreatePost, rbac.PermViewPost))
	})

	It("returns existing rows from Ensure", func() {
		a, err := svc.EnsureRole(ctx, "Auditor")
		Expect(err).NotTo(HaveOccurred())
		b, err := svc.EnsureRole(ctx, "auditor")
		Expect(err).NotTo(HaveOccurred())
		Expect(b.ID).To(Equal(a.ID))
	})
})
