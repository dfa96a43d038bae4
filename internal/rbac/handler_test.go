package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("RBAC Handler", func() {
	var router chi.Router

	BeforeEach(func() {
		svc := rbac.NewService(rbacPostgres.NewGraphRepository(openDB()), "user", logger.Discard())
		h := rbac.NewHandler(transport.NewBaseHandler(logger.Discard()), svc)

		router = chi.NewRouter()
		router.Get("/roles", h.ListRoles)
		router.Post("/roles", h.CreateRole)
		router.Get("/roles/{id}/permissions", h.GetRolePermissions)
		router.Post("/roles/{id}/permissions", h.AttachPermissions)
		router.Get("/permissions", h.ListPermissions)
		router.Post("/permissions", h.CreatePermission)
		router.Get("/permissions/{id}/roles", h.GetPermissionRoles)
	})

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("builds and reads the graph over HTTP", func() {
		Expect(serve(http.MethodPost, "/roles", `{"name":"editor"}`).Code).To(Equal(http.StatusCreated))
		Expect(serve(http.MethodPost, "/permissions", `{"name":"publish"}`).Code).To(Equal(http.StatusCreated))

		rec := serve(http.MethodPost, "/roles/1/permissions", `{"permission_ids":[1]}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var role rbac.RoleWithPermissions
		Expect(json.Unmarshal(rec.Body.Bytes(), &role)).To(Succeed())
		Expect(role.Name).To(Equal("editor"))
		Expect(role.Permissions).To(ConsistOf(rbac.Permission{ID: 1, Name: "publish"}))

		rec = serve(http.MethodGet, "/permissions/1/roles", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"name":"editor"`))

		rec = serve(http.MethodGet, "/roles", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"editor"`))
	})

	It("maps errors onto status codes", func() {
		Expect(serve(http.MethodPost, "/roles", `{"name":"editor"}`).Code).To(Equal(http.StatusCreated))
		Expect(serve(http.MethodPost, "/roles", `{"name":"EDITOR"}`).Code).To(Equal(http.StatusConflict))
		Expect(serve(http.MethodPost, "/roles", `{}`).Code).To(Equal(http.StatusBadRequest))
		Expect(serve(http.MethodGet, "/roles/99/permissions", "").Code).To(Equal(http.StatusNotFound))
		Expect(serve(http.MethodPost, "/roles/1/permissions", `{"permission_ids":[42]}`).Code).To(Equal(http.StatusNotFound))
		Expect(serve(http.MethodGet, "/permissions/x/roles", "").Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("RBAC event handlers", func() {
	It("bumps the cache version when a user is deactivated or deleted", func() {
		ctx := context.Background()
		mr := miniredis.RunT(GinkgoT())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)

		cache := rbac.NewCache(client, time.Minute)
		svc := rbac.NewService(rbacPostgres.NewGraphRepository(openDB()), "user", logger.Discard(), rbac.WithCache(cache))
		bus := events.NewEventBus(logger.Discard())
		rbac.RegisterEventHandlers(bus, svc)

		before, err := cache.Version(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(bus.PublishSync(ctx, events.NewUserDeactivatedEvent(1, 2))).To(Succeed())
		Expect(bus.PublishSync(ctx, events.NewUserDeletedEvent(1, 2))).To(Succeed())

		after, err := cache.Version(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before + 2))
	})
})
