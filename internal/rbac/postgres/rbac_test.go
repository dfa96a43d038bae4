package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/frahmantamala/rbac-service/internal"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRBACPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RBAC Postgres Suite")
}

func openTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	Expect(err).NotTo(HaveOccurred())

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&userDatamodel.User{},
		&rbacDatamodel.Role{},
		&rbacDatamodel.Permission{},
		&rbacDatamodel.UserRole{},
		&rbacDatamodel.RolePermission{},
	)
	Expect(err).NotTo(HaveOccurred())
	return db
}

func seedRole(db *gorm.DB, name string, perms ...string) rbacDatamodel.Role {
	role := rbacDatamodel.Role{Name: name}
	Expect(db.Create(&role).Error).To(Succeed())
	for _, p := range perms {
		perm := rbacDatamodel.Permission{Name: p}
		Expect(db.Where("name = ?", p).FirstOrCreate(&perm).Error).To(Succeed())
		Expect(db.Create(&rbacDatamodel.RolePermission{RoleID: role.ID, PermissionID: perm.ID}).Error).To(Succeed())
	}
	return role
}

func newUser(email string) *userDatamodel.User {
	return &userDatamodel.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuu",
		IsActive:     true,
	}
}

var _ = Describe("RBAC Graph Repository", func() {
	var (
		db   *gorm.DB
		repo rbac.RepositoryAPI
		ctx  context.Context
	)

	BeforeEach(func() {
		db = openTestDB()
		repo = rbacPostgres.NewGraphRepository(db)
		ctx = context.Background()
	})

	Describe("CreateUserWithRoles", func() {
		var userRole, editor rbacDatamodel.Role

		BeforeEach(func() {
			userRole = seedRole(db, "user", "view_post")
			editor = seedRole(db, "editor", "publish", "edit_post")
		})

		It("should link the default role when no roles are requested", func() {
			// Given
			u := newUser("plain@example.com")

			// When
			roles, err := repo.CreateUserWithRoles(ctx, u, "user", nil)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(BeNumerically(">", 0))
			Expect(roles).To(HaveLen(1))
			Expect(roles[0].Name).To(Equal("user"))

			names, err := repo.UserRoleNames(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"user"}))
		})

		It("should union requested roles with the default and dedupe", func() {
			u := newUser("alice@example.com")

			roles, err := repo.CreateUserWithRoles(ctx, u, "user", []int64{editor.ID, userRole.ID, editor.ID})

			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(2))

			names, err := repo.UserRoleNames(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"editor", "user"}))
		})

		It("should silently drop unknown role ids", func() {
			u := newUser("ghost@example.com")

			roles, err := repo.CreateUserWithRoles(ctx, u, "user", []int64{9999})

			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(1))
			Expect(roles[0].ID).To(Equal(userRole.ID))
		})

		It("should fail with NotFound and write nothing when the default role is missing", func() {
			u := newUser("nodefault@example.com")

			_, err := repo.CreateUserWithRoles(ctx, u, "missing", []int64{editor.ID})

			Expect(errors.Is(err, internal.ErrDefaultRoleNotFound)).To(BeTrue())
			Expect(u.ID).To(BeZero())

			var count int64
			Expect(db.Model(&userDatamodel.User{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("should roll back the user row when writing role links fails", func() {
			// Given
			Expect(db.Migrator().DropTable(&rbacDatamodel.UserRole{})).To(Succeed())
			u := newUser("atomic@example.com")

			// When
			_, err := repo.CreateUserWithRoles(ctx, u, "user", nil)

			// Then
			Expect(err).To(HaveOccurred())
			var count int64
			Expect(db.Model(&userDatamodel.User{}).Where("email = ?", "atomic@example.com").Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("should leave no rows behind when the context is cancelled mid-transaction", func() {
			// Given
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			err := db.Callback().Create().After("gorm:create").Register("test:cancel_after_user_insert", func(tx *gorm.DB) {
				if tx.Statement.Table == "users" {
					cancel()
				}
			})
			Expect(err).NotTo(HaveOccurred())
			u := newUser("cancelled@example.com")

			// When
			_, err = repo.CreateUserWithRoles(cctx, u, "user", []int64{editor.ID})

			// Then
			Expect(errors.Is(err, context.Canceled)).To(BeTrue(), "%v", err)
			Expect(u.ID).To(BeZero())
			var users, links int64
			Expect(db.Model(&userDatamodel.User{}).Where("email = ?", "cancelled@example.com").Count(&users).Error).To(Succeed())
			Expect(users).To(BeZero())
			Expect(db.Model(&rbacDatamodel.UserRole{}).Count(&links).Error).To(Succeed())
			Expect(links).To(BeZero())
		})

		It("should reject a duplicate email", func() {
			_, err := repo.CreateUserWithRoles(ctx, newUser("dup@example.com"), "user", nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.CreateUserWithRoles(ctx, newUser("dup@example.com"), "user", nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("resolution", func() {
		var alice *userDatamodel.User

		BeforeEach(func() {
			seedRole(db, "user", "view_post")
			editor := seedRole(db, "editor", "publish", "view_post")
			reviewer := seedRole(db, "reviewer", "comment")

			alice = newUser("alice@example.com")
			_, err := repo.CreateUserWithRoles(ctx, alice, "user", []int64{editor.ID, reviewer.ID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the sorted union of permissions over held roles", func() {
			perms, err := repo.UserPermissionNames(ctx, alice.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(Equal([]string{"comment", "publish", "view_post"}))
		})

		It("should resolve nothing for an unknown user", func() {
			perms, err := repo.UserPermissionNames(ctx, 424242)

			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())
		})

		It("should resolve nothing for a soft-deleted user", func() {
			Expect(db.Model(&userDatamodel.User{}).Where("id = ?", alice.ID).
				Updates(map[string]interface{}{"is_deleted": true}).Error).To(Succeed())

			roles, err := repo.UserRoleNames(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(BeEmpty())

			perms, err := repo.UserPermissionNames(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())
		})
	})

	Describe("AssignUserRoles", func() {
		var (
			u              *userDatamodel.User
			editor, review rbacDatamodel.Role
		)

		BeforeEach(func() {
			seedRole(db, "user")
			editor = seedRole(db, "editor")
			review = seedRole(db, "reviewer")

			u = newUser("assign@example.com")
			_, err := repo.CreateUserWithRoles(ctx, u, "user", []int64{editor.ID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should add roles on top of the current ones", func() {
			roles, err := repo.AssignUserRoles(ctx, u.ID, "user", []int64{review.ID, editor.ID}, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(rbac.RoleNames(rbac.RolesFromDataModel(roles))).To(Equal([]string{"editor", "reviewer", "user"}))
		})

		It("should replace roles but keep the default", func() {
			roles, err := repo.AssignUserRoles(ctx, u.ID, "user", []int64{review.ID}, true)

			Expect(err).NotTo(HaveOccurred())
			Expect(rbac.RoleNames(rbac.RolesFromDataModel(roles))).To(Equal([]string{"reviewer", "user"}))
		})

		It("should return NotFound for a soft-deleted user", func() {
			Expect(db.Model(&userDatamodel.User{}).Where("id = ?", u.ID).Update("is_deleted", true).Error).To(Succeed())

			_, err := repo.AssignUserRoles(ctx, u.ID, "user", []int64{review.ID}, false)
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("reference data", func() {
		It("should attach permissions idempotently and read both directions", func() {
			role := rbacDatamodel.Role{Name: "moderator"}
			Expect(repo.CreateRole(ctx, &role)).To(Succeed())
			p1 := rbacDatamodel.Permission{Name: "edit_post"}
			p2 := rbacDatamodel.Permission{Name: "delete_post"}
			Expect(repo.CreatePermission(ctx, &p1)).To(Succeed())
			Expect(repo.CreatePermission(ctx, &p2)).To(Succeed())

			Expect(repo.AttachPermissions(ctx, role.ID, []int64{p1.ID, p2.ID})).To(Succeed())
			Expect(repo.AttachPermissions(ctx, role.ID, []int64{p1.ID})).To(Succeed())

			perms, err := repo.RolePermissions(ctx, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(2))
			Expect(perms[0].Name).To(Equal("delete_post"))

			roles, err := repo.PermissionRoles(ctx, p1.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(1))
			Expect(roles[0].Name).To(Equal("moderator"))
		})

		It("should reject attaching to an unknown role or unknown permission", func() {
			role := rbacDatamodel.Role{Name: "lonely"}
			Expect(repo.CreateRole(ctx, &role)).To(Succeed())

			err := repo.AttachPermissions(ctx, 999, []int64{1})
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())

			err = repo.AttachPermissions(ctx, role.ID, []int64{999})
			Expect(errors.Is(err, internal.ErrPermissionNotFound)).To(BeTrue())
		})

		It("should reject a duplicate role name", func() {
			Expect(repo.CreateRole(ctx, &rbacDatamodel.Role{Name: "admin"})).To(Succeed())
			Expect(repo.CreateRole(ctx, &rbacDatamodel.Role{Name: "admin"})).NotTo(Succeed())
		})

		It("should return nil for missing lookups", func() {
			role, err := repo.GetRoleByID(ctx, 77)
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(BeNil())

			perm, err := repo.GetPermissionByName(ctx, "nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(perm).To(BeNil())
		})
	})
})
