package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var platformCols = []string{
	"id", "slug", "name", "description", "links", "metadata",
	"owner_team_id", "created_at", "updated_at", "owner_team_slug",
}

var tagCols = []string{"id", "slug", "description", "color", "created_at"}

func platformRow(id int64, slug string, ownerTeamID int64) *sqlmock.Rows {
	return sqlmock.NewRows(platformCols).
		AddRow(id, slug, "Platform "+slug, "", []byte("{}"), []byte("{}"),
			ownerTeamID, time.Now(), time.Now(), "team")
}

type membershipKey struct{ teamID, userID int64 }

type stubMemberships struct {
	rows map[membershipKey]*models.TeamMember
}

func (s *stubMemberships) GetMembership(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	return s.rows[membershipKey{teamID, userID}], nil
}

func admin(teamID, userID int64) (membershipKey, *models.TeamMember) {
	return membershipKey{teamID, userID}, &models.TeamMember{TeamID: teamID, UserID: userID, Role: "admin"}
}

const callerID int64 = 7

func newCatalogRouter(t *testing.T, memberships map[membershipKey]*models.TeamMember) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	authz, err := auth.NewAuthorizer(&stubMemberships{rows: memberships}, auth.Options{})
	require.NoError(t, err)

	h := NewHandlers(repositories.NewCatalogRepository(sqlxDB), repositories.NewTagRepository(sqlxDB), authz, 0)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, auth.Principal{UserID: callerID, Email: "dev@example.com"})
	})
	r.GET("/platforms", h.ListPlatforms)
	r.GET("/platforms/:slug", h.GetPlatform)
	r.POST("/platforms", h.CreatePlatform)
	r.PUT("/platforms/:slug", h.UpdatePlatform)
	r.POST("/platforms/:slug/transfer", h.TransferPlatform)
	r.GET("/platforms/:slug/tags", h.ListEntityTags("platform"))
	r.POST("/platforms/:slug/tags", h.AttachTag("platform"))
	r.DELETE("/platforms/:slug/tags/:tag", h.DetachTag("platform"))
	r.POST("/tags", h.CreateTag)
	return mock, r
}

func jsonReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestListPlatforms_CapsLimit(t *testing.T) {
	mock, r := newCatalogRouter(t, nil)

	mock.ExpectQuery("SELECT.*FROM platforms").
		WithArgs(200, 0).
		WillReturnRows(sqlmock.NewRows(platformCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/platforms?limit=9999", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlatform_NotFound(t *testing.T) {
	mock, r := newCatalogRouter(t, nil)

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(sqlmock.NewRows(platformCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/platforms/ghost", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePlatform_AdminOnOwningTeam(t *testing.T) {
	k, m := admin(4, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("INSERT INTO platforms").
		WithArgs("snes-mini", "SNES Mini", "", nil, nil, int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "links", "metadata", "created_at", "updated_at"}).
			AddRow(int64(11), []byte("{}"), []byte("{}"), time.Now(), time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms",
		`{"slug":"snes-mini","name":"SNES Mini","owner_team_id":4}`))

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlatform_MemberForbidden(t *testing.T) {
	k := membershipKey{4, callerID}
	m := &models.TeamMember{TeamID: 4, UserID: callerID, Role: "member"}
	_, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms",
		`{"slug":"snes-mini","name":"SNES Mini","owner_team_id":4}`))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreatePlatform_DuplicateSlug(t *testing.T) {
	k, m := admin(4, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("INSERT INTO platforms").
		WillReturnError(&pq.Error{Code: "23505"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms",
		`{"slug":"snes-mini","name":"SNES Mini","owner_team_id":4}`))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreatePlatform_RejectsBadSlug(t *testing.T) {
	_, r := newCatalogRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms",
		`{"slug":"Bad Slug!","name":"x","owner_team_id":4}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePlatform_SlugImmutable(t *testing.T) {
	k, m := admin(4, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(platformRow(11, "snes-mini", 4))
	mock.ExpectQuery("UPDATE platforms").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("PUT", "/platforms/snes-mini", `{"name":"Renamed"}`))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "snes-mini", body["slug"])
}

func TestTransferPlatform_NeedsBothTeams(t *testing.T) {
	// Admin on the current owner only; transfer needs standing on the
	// destination team too.
	k, m := admin(4, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(platformRow(11, "snes-mini", 4))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms/snes-mini/transfer", `{"team_id":5}`))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransferPlatform_AdminOnBoth(t *testing.T) {
	k4, m4 := admin(4, callerID)
	k5, m5 := admin(5, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k4: m4, k5: m5})

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(platformRow(11, "snes-mini", 4))
	mock.ExpectExec("UPDATE platforms").
		WithArgs(int64(5), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms/snes-mini/transfer", `{"team_id":5}`))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTag_RequiresRootTeamStanding(t *testing.T) {
	k, m := admin(4, callerID) // admin somewhere, but not on the root team
	_, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/tags", `{"slug":"homebrew"}`))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateTag_RootAdmin(t *testing.T) {
	k, m := admin(models.RootTeamID, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("INSERT INTO tags").
		WithArgs("homebrew", "", 0xFF8800).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(2), time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/tags", `{"slug":"homebrew","color":16746496}`))

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTag_RejectsOutOfRangeColor(t *testing.T) {
	_, r := newCatalogRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/tags", `{"slug":"homebrew","color":16777216}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachTag(t *testing.T) {
	k, m := admin(4, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(platformRow(11, "snes-mini", 4))
	mock.ExpectQuery("SELECT.*FROM tags").
		WillReturnRows(sqlmock.NewRows(tagCols).
			AddRow(int64(2), "homebrew", "", 0, time.Now()))
	mock.ExpectExec("INSERT INTO platform_tags").
		WithArgs(int64(11), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms/snes-mini/tags", `{"tag":"homebrew"}`))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachTag_UnknownTag(t *testing.T) {
	k, m := admin(4, callerID)
	mock, r := newCatalogRouter(t, map[membershipKey]*models.TeamMember{k: m})

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(platformRow(11, "snes-mini", 4))
	mock.ExpectQuery("SELECT.*FROM tags").
		WillReturnRows(sqlmock.NewRows(tagCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/platforms/snes-mini/tags", `{"tag":"ghost"}`))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEntityTags_PublicRead(t *testing.T) {
	mock, r := newCatalogRouter(t, nil)

	mock.ExpectQuery("SELECT.*FROM platforms").
		WillReturnRows(platformRow(11, "snes-mini", 4))
	mock.ExpectQuery("SELECT.*FROM tags").
		WillReturnRows(sqlmock.NewRows(tagCols).
			AddRow(int64(2), "homebrew", "", 0, time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/platforms/snes-mini/tags", nil))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
