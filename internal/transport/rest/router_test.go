package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	postDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/post"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/credential"
	"github.com/frahmantamala/rbac-service/internal/observability"
	"github.com/frahmantamala/rbac-service/internal/post"
	postPostgres "github.com/frahmantamala/rbac-service/internal/post/postgres"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/transport/rest"
	"github.com/frahmantamala/rbac-service/internal/user"
	userPostgres "github.com/frahmantamala/rbac-service/internal/user/postgres"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Router Suite")
}

type server struct {
	router *chi.Mux
	users  *user.Service
	roles  map[string]rbac.Role
}

func newServer() *server {
	ctx := context.Background()
	lg := logger.Discard()

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
		&postDatamodel.Post{},
	)).To(Succeed())
	reader := sqlx.NewDb(sqlDB, "sqlite3")

	bus := events.NewEventBus(lg)
	metrics := observability.NewMetrics()
	metrics.RegisterEventHandlers(bus)

	graph := rbac.NewService(rbacPostgres.NewGraphRepository(db), internal.DefaultRoleName, lg, rbac.WithPublisher(bus))
	rbac.RegisterEventHandlers(bus, graph)
	roles, err := graph.Bootstrap(ctx, rbac.DefaultPermissions, rbac.DefaultCatalog)
	Expect(err).NotTo(HaveOccurred())

	hasher, err := credential.NewHasher(bcrypt.MinCost, 2)
	Expect(err).NotTo(HaveOccurred())
	tokens, err := auth.NewJWTTokenGenerator("access", "refresh", 15*time.Minute, time.Hour, lg)
	Expect(err).NotTo(HaveOccurred())

	users := user.NewService(userPostgres.NewUserRepository(db), graph, hasher, bus, lg)
	authSvc := auth.NewService(users, tokens, hasher, lg).WithMetrics(metrics)
	guard := auth.NewGuard(tokens, users, graph, lg).WithMetrics(metrics)
	posts := post.NewService(postPostgres.NewPostRepository(db, reader), auth.NewOwnershipPolicy(graph, lg), lg)

	base := transport.NewBaseHandler(lg)
	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, reader, rest.Handlers{
		Auth:  auth.NewHandler(base, authSvc),
		User:  user.NewHandler(base, users, graph),
		RBAC:  rbac.NewHandler(base, graph),
		Post:  post.NewHandler(base, posts),
		Guard: guard,
	}, metrics, rest.RouterConfig{
		RateLimit:   internal.RateLimitConfig{Enabled: true, Requests: 100, Window: time.Minute},
		MetricsPath: "/metrics",
	}, lg)

	DeferCleanup(func() {
		bus.Wait()
		Expect(sqlDB.Close()).To(Succeed())
	})
	return &server{router: router, users: users, roles: roles}
}

func (s *server) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(email, password string) auth.AuthResult {
	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
	var result auth.AuthResult
	Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
	return result
}

var _ = Describe("Route table", func() {
	var (
		s     *server
		alice auth.AuthResult
		admin auth.AuthResult
	)

	BeforeEach(func() {
		s = newServer()

		rec := s.do(http.MethodPost, "/api/v1/auth/register", "", `{"name":"Alice","email":"alice@example.com","password":"alice-pass"}`)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		Expect(json.Unmarshal(rec.Body.Bytes(), &alice)).To(Succeed())

		_, err := s.users.Create(context.Background(), user.NewUser{
			Name:     "Admin",
			Email:    "admin@example.com",
			Password: "admin-pass",
			IsActive: true,
			RoleIDs:  []int64{s.roles["admin"].ID},
			Source:   user.SourceAdmin,
		})
		Expect(err).NotTo(HaveOccurred())
		admin = s.login("admin@example.com", "admin-pass")
	})

	It("serves health and metrics without a token", func() {
		Expect(s.do(http.MethodGet, "/api/v1/ping", "", "").Code).To(Equal(http.StatusOK))
		Expect(s.do(http.MethodGet, "/api/v1/health", "", "").Code).To(Equal(http.StatusOK))

		rec := s.do(http.MethodGet, "/metrics", "", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("rbac_auth_registrations_total"))
	})

	It("returns the current user with roles and permissions", func() {
		rec := s.do(http.MethodGet, "/api/v1/users/me", alice.AccessToken, "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var me user.MeResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &me)).To(Succeed())
		Expect(me.Email).To(Equal("alice@example.com"))
		Expect(me.Roles).To(Equal([]string{"user"}))
		Expect(me.Permissions).To(Equal([]string{"create_post", "view_post"}))
		Expect(rec.Body.String()).NotTo(ContainSubstring("password"))
	})

	It("requires a token on protected routes", func() {
		Expect(s.do(http.MethodGet, "/api/v1/users/me", "", "").Code).To(Equal(http.StatusUnauthorized))
		Expect(s.do(http.MethodGet, "/api/v1/roles", "garbage", "").Code).To(Equal(http.StatusUnauthorized))
	})

	It("enforces permissions on admin routes", func() {
		Expect(s.do(http.MethodGet, "/api/v1/roles", alice.AccessToken, "").Code).To(Equal(http.StatusForbidden))
		Expect(s.do(http.MethodGet, "/api/v1/roles", admin.AccessToken, "").Code).To(Equal(http.StatusOK))

		path := "/api/v1/users/" + strconv.FormatInt(alice.User.ID, 10) + "/roles"
		Expect(s.do(http.MethodGet, path, alice.AccessToken, "").Code).To(Equal(http.StatusForbidden))

		rec := s.do(http.MethodGet, path, admin.AccessToken, "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"name":"user"`))
	})

	It("grants new permissions as soon as roles are assigned", func() {
		path := "/api/v1/users/" + strconv.FormatInt(alice.User.ID, 10) + "/roles"
		body := `{"role_ids":[` + strconv.FormatInt(s.roles["moderator"].ID, 10) + `]}`

		rec := s.do(http.MethodPost, path, admin.AccessToken, body)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		Expect(rec.Body.String()).To(ContainSubstring(`"name":"moderator"`))

		Expect(s.do(http.MethodGet, path, alice.AccessToken, "").Code).To(Equal(http.StatusOK))
	})

	It("creates, reads and deletes posts with the ownership rule", func() {
		rec := s.do(http.MethodPost, "/api/v1/posts", alice.AccessToken, `{"title":"Hi","content":"There"}`)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		var created post.Post
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		path := "/api/v1/posts/" + strconv.FormatInt(created.ID, 10)

		rec = s.do(http.MethodGet, path, admin.AccessToken, "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"email":"alice@example.com"`))

		_, err := s.users.Create(context.Background(), user.NewUser{
			Name: "Bob", Email: "bob@example.com", Password: "bob-pass1", IsActive: true,
		})
		Expect(err).NotTo(HaveOccurred())
		bob := s.login("bob@example.com", "bob-pass1")
		Expect(s.do(http.MethodDelete, path, bob.AccessToken, "").Code).To(Equal(http.StatusForbidden))

		Expect(s.do(http.MethodDelete, path, admin.AccessToken, "").Code).To(Equal(http.StatusNoContent))
		Expect(s.do(http.MethodGet, path, alice.AccessToken, "").Code).To(Equal(http.StatusNotFound))
	})

	It("locks a deactivated user out immediately", func() {
		path := "/api/v1/users/" + strconv.FormatInt(alice.User.ID, 10) + "/deactivate"
		Expect(s.do(http.MethodPatch, path, alice.AccessToken, "").Code).To(Equal(http.StatusForbidden))
		Expect(s.do(http.MethodPatch, path, admin.AccessToken, "").Code).To(Equal(http.StatusNoContent))

		Expect(s.do(http.MethodGet, "/api/v1/users/me", alice.AccessToken, "").Code).To(Equal(http.StatusUnauthorized))
		rec := s.do(http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+alice.RefreshToken+`"}`)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("refreshes tokens for an active user", func() {
		rec := s.do(http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+alice.RefreshToken+`"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("access_token"))
	})

	It("rejects a duplicate registration with 409", func() {
		rec := s.do(http.MethodPost, "/api/v1/auth/register", "", `{"name":"Again","email":"alice@example.com","password":"alice-pass"}`)
		Expect(rec.Code).To(Equal(http.StatusConflict))
	})
})
