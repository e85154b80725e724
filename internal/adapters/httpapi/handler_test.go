package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore"
	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore/gormdb"
	"github.com/atvirokodosprendimai/activitylog/internal/core/events"
	"github.com/atvirokodosprendimai/activitylog/internal/core/usecase"
	"github.com/atvirokodosprendimai/activitylog/migrations"
)

var (
	tenantA = uuid.MustParse("0b7e3c52-6c0f-4b7e-8f11-1d8f1b5a0a01")
	tenantB = uuid.MustParse("5f0e2a77-93c4-4d0c-b5a6-0c2b0e9d7b02")
)

type testServer struct {
	t        *testing.T
	router   http.Handler
	subjects *usecase.SubjectService
	auth     *usecase.AuthService
	tokenA   string
	tokenB   string
}

type serverOption func(*serverConfig)

type serverConfig struct {
	readRegistry *events.Registry
}

// withReadRegistry renders pages through r while writes keep the default
// registry.
func withReadRegistry(r *events.Registry) serverOption {
	return func(c *serverConfig) { c.readRegistry = r }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := gormdb.Open(gormdb.Options{Driver: gormdb.DriverSQLite, DSN: filepath.Join(t.TempDir(), "api.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	wdb, err := db.WriteSQLDB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, wdb, gormdb.DriverSQLite))

	registry, err := events.DefaultRegistry()
	require.NoError(t, err)
	cfg := serverConfig{readRegistry: registry}
	for _, opt := range opts {
		opt(&cfg)
	}

	writer := usecase.NewActivityService(registry, gormstore.NewActivityStore(db), nil)
	reader := usecase.NewActivityService(cfg.readRegistry, gormstore.NewActivityStore(db), nil)
	subjects := usecase.NewSubjectService(gormstore.NewTransactor(db), gormstore.NewSubjectStore(db), writer)
	auth := usecase.NewAuthService(gormstore.NewAPIKeyRepository(db))

	s := &testServer{
		t:        t,
		router:   NewHandler(subjects, reader, auth, WithMetricsHandler(http.NotFoundHandler())).Router(),
		subjects: subjects,
		auth:     auth,
	}
	s.tokenA = s.issueKey(tenantA)
	s.tokenB = s.issueKey(tenantB)
	return s
}

func (s *testServer) issueKey(tenant uuid.UUID) string {
	s.t.Helper()
	token, _, err := s.auth.IssueKey(context.Background(), usecase.IssueKeyInput{
		TenantID:   tenant,
		Name:       "test",
		ActorName:  "Jane Doe",
		ActorRoles: []string{"Admin"},
	})
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(token, method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(token, segment, name string) subjectResponse {
	s.t.Helper()
	rec := s.do(token, http.MethodPost, "/v1/"+segment, `{"name":"`+name+`"}`)
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create %s: got %d body=%s", segment, rec.Code, rec.Body.String())
	}
	var out subjectResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) activityPageResponse {
	t.Helper()
	var page activityPageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("", http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRequiresAPIKey(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("", http.MethodGet, "/v1/contacts", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = s.do("wrong", http.MethodGet, "/v1/contacts", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAcceptsXAPIKeyHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/contacts", nil)
	req.Header.Set("X-API-Key", s.tokenA)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivateThenActivityPage(t *testing.T) {
	s := newTestServer(t)
	contact := s.create(s.tokenA, "contacts", "Acme Person")

	rec := s.do(s.tokenA, http.MethodPost, "/v1/contacts/"+contact.ID+"/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(s.tokenA, http.MethodGet, "/v1/contacts/"+contact.ID+"/activities?page=1&pageSize=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodePage(t, rec)
	require.Equal(t, uint32(1), page.PageCount)
	require.Len(t, page.Items, 2)
	require.Equal(t, "Contact deactivated", page.Items[0].Message)
	require.Equal(t, "Jane Doe", page.Items[0].FullName)
	require.Equal(t, "Contact Acme Person created", page.Items[1].Message)
	require.NotEmpty(t, page.Items[0].Date)
}

func TestActivityPagePagination(t *testing.T) {
	s := newTestServer(t)
	user := s.create(s.tokenA, "users", "John Roe")
	for _, role := range []string{"Admin", "Viewer", "Editor"} {
		rec := s.do(s.tokenA, http.MethodPost, "/v1/users/"+user.ID+"/roles", `{"roles":["`+role+`"]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(s.tokenA, http.MethodGet, "/v1/users/"+user.ID+"/activities?page=2&pageSize=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	require.Equal(t, uint32(2), page.PageCount)
	require.Len(t, page.Items, 1)
	require.Equal(t, "User John Roe created", page.Items[0].Message)

	rec = s.do(s.tokenA, http.MethodGet, "/v1/users/"+user.ID+"/activities?page=9&pageSize=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodePage(t, rec)
	require.Empty(t, page.Items)
	require.Equal(t, uint32(2), page.PageCount)
}

func TestActivityPageHugePageIsEmpty(t *testing.T) {
	s := newTestServer(t)
	entity := s.create(s.tokenA, "entities", "Acme LLC")

	rec := s.do(s.tokenA, http.MethodGet, "/v1/entities/"+entity.ID+"/activities?page=2305843009213693953&pageSize=4", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodePage(t, rec)
	require.Empty(t, page.Items)
	require.Equal(t, uint32(1), page.PageCount)
}

func TestActivityPageRejectsBadPaging(t *testing.T) {
	s := newTestServer(t)
	contact := s.create(s.tokenA, "contacts", "A")

	for _, q := range []string{"page=0&pageSize=10", "page=1&pageSize=0", "page=-1&pageSize=10", "page=x&pageSize=10", "page=1&pageSize=1.5", "page=1&pageSize=1001"} {
		rec := s.do(s.tokenA, http.MethodGet, "/v1/contacts/"+contact.ID+"/activities?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestActivityPageDefaultsPaging(t *testing.T) {
	s := newTestServer(t)
	contact := s.create(s.tokenA, "contacts", "A")
	rec := s.do(s.tokenA, http.MethodGet, "/v1/contacts/"+contact.ID+"/activities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodePage(t, rec).Items, 1)
}

func TestActivityPageTenantIsolation(t *testing.T) {
	s := newTestServer(t)
	contact := s.create(s.tokenA, "contacts", "A")

	rec := s.do(s.tokenB, http.MethodGet, "/v1/contacts/"+contact.ID+"/activities?page=1&pageSize=10", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	missing := s.do(s.tokenA, http.MethodGet, "/v1/contacts/"+uuid.NewString()+"/activities?page=1&pageSize=10", "")
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Equal(t, rec.Body.String(), missing.Body.String())
}

func TestActivityPageWrongKindIsNotFound(t *testing.T) {
	s := newTestServer(t)
	contact := s.create(s.tokenA, "contacts", "A")

	rec := s.do(s.tokenA, http.MethodGet, "/v1/accounts/"+contact.ID+"/activities?page=1&pageSize=10", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(s.tokenA, http.MethodGet, "/v1/widgets/"+contact.ID+"/activities", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(s.tokenA, http.MethodGet, "/v1/contacts/not-a-uuid/activities", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivityPageUnresolvedEntryIsServerError(t *testing.T) {
	empty, err := events.NewRegistry()
	require.NoError(t, err)
	s := newTestServer(t, withReadRegistry(empty))
	contact := s.create(s.tokenA, "contacts", "A")

	rec := s.do(s.tokenA, http.MethodGet, "/v1/contacts/"+contact.ID+"/activities?page=1&pageSize=10", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "items")
}

func TestSubjectCRUD(t *testing.T) {
	s := newTestServer(t)
	account := s.create(s.tokenA, "accounts", "Acme")
	require.True(t, account.Active)
	require.Equal(t, "account", account.Kind)

	rec := s.do(s.tokenA, http.MethodPut, "/v1/accounts/"+account.ID, `{"name":"Acme Corp","attributes":{"city":"Vilnius"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated subjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "Acme Corp", updated.Name)
	require.Equal(t, "Vilnius", updated.Attributes["city"])

	rec = s.do(s.tokenA, http.MethodGet, "/v1/accounts/"+account.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(s.tokenB, http.MethodGet, "/v1/accounts/"+account.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(s.tokenA, http.MethodGet, "/v1/accounts?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []subjectResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
}

func TestCreateRejectsBadBodies(t *testing.T) {
	s := newTestServer(t)
	cases := []string{`{"name":""}`, `{"name":"A","extra":1}`, `{"name":"A"}{}`, `not json`}
	for _, body := range cases {
		rec := s.do(s.tokenA, http.MethodPost, "/v1/contacts", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestLifecycleConflicts(t *testing.T) {
	s := newTestServer(t)
	program := s.create(s.tokenA, "programs", "P")

	rec := s.do(s.tokenA, http.MethodPost, "/v1/programs/"+program.ID+"/activate", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(s.tokenA, http.MethodPost, "/v1/programs/"+program.ID+"/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(s.tokenA, http.MethodPost, "/v1/programs/"+program.ID+"/deactivate", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(s.tokenA, http.MethodPut, "/v1/programs/"+program.ID, `{"name":"Q"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestContactLinkRoutes(t *testing.T) {
	s := newTestServer(t)
	a := s.create(s.tokenA, "contacts", "Jane Roe")
	b := s.create(s.tokenA, "contacts", "John Roe")

	rec := s.do(s.tokenA, http.MethodPost, "/v1/contacts/"+a.ID+"/links", `{"relatedId":"`+b.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(s.tokenA, http.MethodPost, "/v1/contacts/"+a.ID+"/links", `{"relatedId":"`+b.ID+`"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(s.tokenA, http.MethodGet, "/v1/contacts/"+b.ID+"/activities?page=1&pageSize=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	require.Len(t, page.Items, 1)
	require.Contains(t, page.Items[0].Message, "Jane Roe")

	rec = s.do(s.tokenA, http.MethodDelete, "/v1/contacts/"+a.ID+"/links/"+b.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(s.tokenA, http.MethodPost, "/v1/contacts/"+a.ID+"/links", `{"relatedId":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKindSpecificRoutesAreHiddenOnOtherKinds(t *testing.T) {
	s := newTestServer(t)
	account := s.create(s.tokenA, "accounts", "Acme")

	rec := s.do(s.tokenA, http.MethodPost, "/v1/accounts/"+account.ID+"/roles", `{"roles":["Admin"]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(s.tokenA, http.MethodPost, "/v1/accounts/"+account.ID+"/state-ids", `{"codes":["NY-1"]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityStateIDRoutes(t *testing.T) {
	s := newTestServer(t)
	entity := s.create(s.tokenA, "entities", "Acme LLC")

	rec := s.do(s.tokenA, http.MethodPost, "/v1/entities/"+entity.ID+"/state-ids", `{"codes":["ny-123"," CA-456 "]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out subjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, []string{"NY-123", "CA-456"}, out.StateIDs)

	rec = s.do(s.tokenA, http.MethodPost, "/v1/entities/"+entity.ID+"/state-ids/remove", `{"codes":["NY-123"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(s.tokenA, http.MethodGet, "/v1/entities/"+entity.ID+"/activities?page=1&pageSize=1", "")
	require.Equal(t, "State ID(s) NY-123 removed", decodePage(t, rec).Items[0].Message)
}

func TestTeamMemberRoutes(t *testing.T) {
	s := newTestServer(t)
	team := s.create(s.tokenA, "teams", "Ops")
	user := s.create(s.tokenA, "users", "John Roe")

	rec := s.do(s.tokenA, http.MethodPost, "/v1/teams/"+team.ID+"/members", `{"userIds":["`+user.ID+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(s.tokenA, http.MethodGet, "/v1/teams/"+team.ID+"/activities?page=1&pageSize=1", "")
	require.Equal(t, "1 member(s) added to the team: John Roe", decodePage(t, rec).Items[0].Message)

	rec = s.do(s.tokenA, http.MethodPost, "/v1/teams/"+team.ID+"/members", `{"userIds":["`+uuid.NewString()+`"]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(s.tokenA, http.MethodPost, "/v1/teams/"+team.ID+"/members/remove", `{"userIds":["`+user.ID+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEventTypesListsRegistry(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(s.tokenA, http.MethodGet, "/v1/event-types", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Items []eventTypeResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Items)

	var sawLegacy bool
	for _, item := range out.Items {
		require.NotNil(t, item.Schema)
		if item.Kind == "contact" && item.EventType == "Created" && item.Revision == 1 {
			sawLegacy = true
			require.False(t, item.Current)
		}
	}
	require.True(t, sawLegacy)
}

func TestOpenAPIDocumentsActivities(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("", http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/v1/{kinds}/{id}/activities")

	var doc struct {
		Paths map[string]map[string]struct {
			Parameters []struct {
				Name   string `json:"name"`
				Schema struct {
					Maximum int `json:"maximum"`
				} `json:"schema"`
			} `json:"parameters"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	var maxPageSize int
	for _, p := range doc.Paths["/v1/{kinds}/{id}/activities"]["get"].Parameters {
		if p.Name == "pageSize" {
			maxPageSize = p.Schema.Maximum
		}
	}
	require.Equal(t, 1000, maxPageSize)
}
