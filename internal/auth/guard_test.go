package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/credential"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	"github.com/frahmantamala/rbac-service/internal/user"
	userPostgres "github.com/frahmantamala/rbac-service/internal/user/postgres"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stack struct {
	db      *gorm.DB
	graph   *rbac.Service
	users   *user.Service
	service *auth.Service
	guard   *auth.Guard
}

func newStack() *stack {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	Expect(err).NotTo(HaveOccurred())
	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)
	Expect(db.AutoMigrate(
		&userDatamodel.User{},
		&rbacDatamodel.Role{},
		&rbacDatamodel.Permission{},
		&rbacDatamodel.UserRole{},
		&rbacDatamodel.RolePermission{},
	)).To(Succeed())

	lg := logger.Discard()
	hasher, err := credential.NewHasher(bcrypt.MinCost, 2)
	Expect(err).NotTo(HaveOccurred())
	tokens, err := auth.NewJWTTokenGenerator("access-secret", "refresh-secret", 15*time.Minute, time.Hour, lg)
	Expect(err).NotTo(HaveOccurred())

	graph := rbac.NewService(rbacPostgres.NewGraphRepository(db), internal.DefaultRoleName, lg)
	users := user.NewService(userPostgres.NewUserRepository(db), graph, hasher, nil, lg)

	return &stack{
		db:      db,
		graph:   graph,
		users:   users,
		service: auth.NewService(users, tokens, hasher, lg),
		guard:   auth.NewGuard(tokens, users, graph, lg),
	}
}

func (s *stack) protected(req auth.Requirement) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, found := internal.SubjectFromContext(r.Context())
		Expect(found).To(BeTrue())
		w.Header().Set("X-Subject", subject.Email)
		w.WriteHeader(http.StatusOK)
	})
	return s.guard.Middleware(s.guard.Require(req)(ok))
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type failingLoader struct{}

func (failingLoader) FindByID(context.Context, int64) (*user.User, error) {
	return nil, errors.New("store unavailable")
}

type brokenResolver struct{}

func (brokenResolver) ResolveRoles(context.Context, int64) ([]string, error) {
	return nil, errors.New("graph unavailable")
}

func (brokenResolver) ResolvePermissions(context.Context, int64) ([]string, error) {
	return nil, errors.New("graph unavailable")
}

var _ = Describe("Requirement", func() {
	It("normalises declared values", func() {
		req := auth.AnyPermission(" Publish ", "publish", "COMMENT")
		Expect(req.Values).To(Equal([]string{"comment", "publish"}))
		Expect(req.String()).To(Equal("permissions(comment|publish)"))
	})

	It("is satisfied by any single value in any mode", func() {
		Expect(auth.AnyRole("admin", "moderator").Satisfied([]string{"moderator"})).To(BeTrue())
		Expect(auth.AnyRole("admin").Satisfied([]string{"user"})).To(BeFalse())
		Expect(auth.AnyRole("admin").Satisfied(nil)).To(BeFalse())
	})

	It("requires every value in all mode", func() {
		req := auth.AllPermissions("create_post", "delete_post")
		Expect(req.Satisfied([]string{"create_post"})).To(BeFalse())
		Expect(req.Satisfied([]string{"delete_post", "view_post", "create_post"})).To(BeTrue())
	})

	It("treats the none requirement as authenticated-only", func() {
		Expect(auth.Requirement{}.Satisfied(nil)).To(BeTrue())
		Expect(auth.Requirement{}.String()).To(Equal("none"))
	})

	It("is never satisfied when a declared kind has no values", func() {
		req := auth.AnyRole("  ")
		Expect(req.Kind).To(Equal(auth.RequireRoles))
		Expect(req.Values).To(BeEmpty())
		Expect(req.Satisfied(nil)).To(BeFalse())
		Expect(req.Satisfied([]string{"admin", "user"})).To(BeFalse())
		Expect(auth.AllPermissions().Satisfied([]string{"create_post"})).To(BeFalse())
	})
})

var _ = Describe("Authorization Guard", func() {
	var (
		s     *stack
		ctx   context.Context
		alice auth.AuthResult
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = newStack()
		_, err := s.graph.CreateRole(ctx, internal.DefaultRoleName)
		Expect(err).NotTo(HaveOccurred())

		alice, err = s.service.Register(ctx, auth.RegisterDTO{
			Name:     "Alice",
			Email:    "alice@example.com",
			Password: "alice-password",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Context("the editor/publish scenario", func() {
		It("grants publish only after editor is assigned", func() {
			// Given
			roles, err := s.graph.ResolveRoles(ctx, alice.User.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(Equal([]string{"user"}))

			perms, err := s.graph.ResolvePermissions(ctx, alice.User.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())

			handler := s.protected(auth.AnyPermission("publish"))
			Expect(call(handler, alice.AccessToken).Code).To(Equal(http.StatusForbidden))

			// When
			editor, err := s.graph.CreateRole(ctx, "editor")
			Expect(err).NotTo(HaveOccurred())
			publish, err := s.graph.CreatePermission(ctx, "publish")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.graph.AttachPermissions(ctx, editor.ID, []int64{publish.ID})).To(Succeed())
			_, err = s.graph.AssignRoles(ctx, alice.User.ID, []int64{editor.ID}, rbac.AssignAdd)
			Expect(err).NotTo(HaveOccurred())

			// Then
			perms, err = s.graph.ResolvePermissions(ctx, alice.User.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(Equal([]string{"publish"}))

			rec := call(handler, alice.AccessToken)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("X-Subject")).To(Equal("alice@example.com"))

			Expect(call(s.protected(auth.AllRoles("editor", "user")), alice.AccessToken).Code).To(Equal(http.StatusOK))
			Expect(call(s.protected(auth.AllPermissions("publish", "comment")), alice.AccessToken).Code).To(Equal(http.StatusForbidden))
		})
	})

	Context("authentication", func() {
		It("rejects a missing token", func() {
			rec := call(s.protected(auth.Requirement{}), "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodeMissingToken)))
		})

		It("rejects a malformed or refresh token", func() {
			handler := s.protected(auth.Requirement{})
			Expect(call(handler, "not-a-token").Code).To(Equal(http.StatusUnauthorized))
			Expect(call(handler, alice.RefreshToken).Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts the scheme case-insensitively", func() {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", "bearer "+alice.AccessToken)
			rec := httptest.NewRecorder()
			s.protected(auth.Requirement{}).ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("rejects a deactivated user holding an unexpired token", func() {
			Expect(s.users.Deactivate(ctx, alice.User.ID, 0)).To(Succeed())

			Expect(call(s.protected(auth.Requirement{}), alice.AccessToken).Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a soft-deleted user holding an unexpired token", func() {
			Expect(s.users.SoftDelete(ctx, alice.User.ID, 0)).To(Succeed())

			_, err := s.guard.Authenticate(ctx, "Bearer "+alice.AccessToken)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})
	})

	Context("when resolution fails", func() {
		It("refuses with Forbidden", func() {
			tokens, err := auth.NewJWTTokenGenerator("access-secret", "refresh-secret", time.Minute, time.Hour, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			guard := auth.NewGuard(tokens, s.users, brokenResolver{}, logger.Discard())

			decision := guard.Check(ctx, "Bearer "+alice.AccessToken, auth.AnyRole("user"))

			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Subject).NotTo(BeNil())
			Expect(internal.HasType(decision.Err, internal.ErrorTypeForbidden)).To(BeTrue())
		})
	})

	Context("when the subject cannot be loaded", func() {
		It("refuses with Unauthorized instead of an internal error", func() {
			tokens, err := auth.NewJWTTokenGenerator("access-secret", "refresh-secret", time.Minute, time.Hour, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			guard := auth.NewGuard(tokens, failingLoader{}, s.graph, logger.Discard())

			decision := guard.Check(ctx, "Bearer "+alice.AccessToken, auth.AnyRole("admin"))

			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Subject).To(BeNil())
			Expect(decision.Err).To(MatchError(internal.ErrInvalidToken))
			Expect(internal.HasType(decision.Err, internal.ErrorTypeInternal)).To(BeFalse())

			h := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			Expect(call(h, alice.AccessToken).Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("when a route declares a requirement without values", func() {
		It("refuses with Forbidden", func() {
			rec := call(s.protected(auth.AnyRole(" ")), alice.AccessToken)
			Expect(rec.Code).To(Equal(http.StatusForbidden))

			decision := s.guard.Check(ctx, "Bearer "+alice.AccessToken, auth.AnyPermission())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Err).To(MatchError(internal.ErrForbidden))
		})
	})

	Context("ownership policy", func() {
		It("lets the owner through and needs the permission otherwise", func() {
			policy := auth.NewOwnershipPolicy(s.graph, logger.Discard())
			subject := &internal.Subject{UserID: alice.User.ID, Email: alice.User.Email}

			Expect(policy.AllowOwnerOr(ctx, subject, alice.User.ID, "delete_post")).To(Succeed())
			Expect(policy.AllowOwnerOr(ctx, subject, alice.User.ID+100, "delete_post")).To(MatchError(internal.ErrForbidden))
			Expect(policy.AllowOwnerOr(ctx, nil, alice.User.ID, "delete_post")).To(MatchError(internal.ErrMissingToken))
		})
	})
})

var _ = Describe("Login scenarios", func() {
	var (
		s   *stack
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = newStack()
		_, err := s.graph.CreateRole(ctx, internal.DefaultRoleName)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.service.Register(ctx, auth.RegisterDTO{Name: "Bob", Email: "bob@example.com", Password: "bob-password"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a wrong password", func() {
		_, err := s.service.Login(ctx, auth.LoginDTO{Email: "bob@example.com", Password: "nope-nope"})
		Expect(internal.HasType(err, internal.ErrorTypeUnauthorized)).To(BeTrue())
	})

	It("rejects a deactivated account with the correct password", func() {
		u, err := s.users.FindByEmail(ctx, "bob@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.users.Deactivate(ctx, u.ID, 0)).To(Succeed())

		_, err = s.service.Login(ctx, auth.LoginDTO{Email: "bob@example.com", Password: "bob-password"})
		Expect(internal.HasType(err, internal.ErrorTypeUnauthorized)).To(BeTrue())
	})

	It("issues distinct non-empty tokens for an active account", func() {
		result, err := s.service.Login(ctx, auth.LoginDTO{Email: "bob@example.com", Password: "bob-password"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.AccessToken).NotTo(BeEmpty())
		Expect(result.RefreshToken).NotTo(BeEmpty())
		Expect(result.AccessToken).NotTo(Equal(result.RefreshToken))
	})

	It("reports a taken email as Conflict on re-registration", func() {
		_, err := s.service.Register(ctx, auth.RegisterDTO{Name: "Bob", Email: "bob@example.com", Password: "bob-password"})
		Expect(internal.HasType(err, internal.ErrorTypeConflict)).To(BeTrue())
	})
})
