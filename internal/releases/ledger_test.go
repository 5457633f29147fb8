package releases

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault-registry/corevault-registry/internal/artifacts"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/storage"
	"github.com/corevault-registry/corevault-registry/internal/validation"
	"github.com/corevault-registry/corevault-registry/pkg/checksum"
)

var releaseCols = []string{
	"id", "kind", "core_id", "system_id", "platform_id", "version", "notes",
	"prerelease", "yanked", "links", "metadata", "uploader_id", "owner_team_id",
	"released_at", "uploaded_at", "uploader_name",
}

var artifactCols = []string{
	"id", "filename", "mime_type", "sha256", "sha512", "size_bytes", "download_url", "created_at",
}

type membershipKey struct{ teamID, userID int64 }

// stubMemberships backs the authorizer without a database.
type stubMemberships struct {
	rows map[membershipKey]*models.TeamMember
}

func (s *stubMemberships) GetMembership(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	return s.rows[membershipKey{teamID, userID}], nil
}

// memObjects is a minimal in-memory object store for the ledger tests.
type memObjects struct {
	blobs map[string][]byte
}

func (m *memObjects) Put(ctx context.Context, key string, reader io.Reader, size int64) (*storage.PutResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	m.blobs[key] = data
	pair := checksum.ComputeBytes(data)
	return &storage.PutResult{Key: key, Size: int64(len(data)), SHA256: pair.SHA256}, nil
}

func (m *memObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	delete(m.blobs, key)
	return nil
}

func (m *memObjects) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://objects.example.com/" + key, nil
}

func (m *memObjects) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *memObjects) Metadata(ctx context.Context, key string) (*storage.ObjectMetadata, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return &storage.ObjectMetadata{Key: key, Size: int64(len(data))}, nil
}

const (
	memberTeamID = int64(3)
	memberUserID = int64(7)
)

var member = auth.Principal{UserID: memberUserID, Email: "member@example.com"}
var outsider = auth.Principal{UserID: 99, Email: "outsider@example.com"}

func newTestLedger(t *testing.T) (*Ledger, *memObjects, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	memberships := &stubMemberships{rows: map[membershipKey]*models.TeamMember{
		{memberTeamID, memberUserID}: {TeamID: memberTeamID, UserID: memberUserID, Role: "member"},
	}}
	authz, err := auth.NewAuthorizer(memberships, auth.Options{})
	require.NoError(t, err)

	objects := &memObjects{blobs: make(map[string][]byte)}
	store := artifacts.NewStore(repositories.NewArtifactRepository(db), objects, 1<<20)

	return NewLedger(repositories.NewReleaseRepository(db), store, authz), objects, mock
}

func systemTarget() Target {
	return Target{Kind: models.ReleaseKindSystem, ID: 10, OwnerTeamID: memberTeamID}
}

func expectIngest(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery(`SELECT .+ FROM artifacts WHERE sha256`).
		WillReturnRows(sqlmock.NewRows(artifactCols))
	mock.ExpectQuery(`INSERT INTO artifacts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(id, time.Now()))
}

func TestCreateSystemRelease(t *testing.T) {
	ledger, objects, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM releases WHERE kind = 'system' AND system_id`).
		WithArgs(int64(10), "1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectIngest(mock, 21)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO releases`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "links", "metadata", "released_at", "uploaded_at"}).
			AddRow(int64(5), []byte(`{}`), []byte(`{}`), time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO release_artifacts`).
		WithArgs(int64(5), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	release, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1.0.0", Meta{},
		[]File{{Filename: "bios.bin", MimeType: "application/octet-stream", Content: strings.NewReader("bios bytes")}}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(5), release.ID)
	assert.Equal(t, models.ReleaseKindSystem, release.Kind)
	assert.Equal(t, int64(10), *release.SystemID)
	assert.Equal(t, memberTeamID, release.OwnerTeamID)
	assert.Equal(t, memberUserID, release.UploaderID)
	require.Len(t, release.Artifacts, 1)
	assert.Len(t, objects.blobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsNonMember(t *testing.T) {
	ledger, objects, _ := newTestLedger(t)

	_, err := ledger.Create(context.Background(), outsider, systemTarget(), nil, "1.0.0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("x")}}, nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.Empty(t, objects.blobs)
}

func TestCreateRejectsInvalidVersion(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1..0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("x")}}, nil)
	require.Error(t, err)

	var verr *validation.VersionError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateRejectsDuplicateVersionBeforeIngest(t *testing.T) {
	ledger, objects, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM releases`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1.0.0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("x")}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateVersion)

	// The pre-check fires before any bytes touch the object store.
	assert.Empty(t, objects.blobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSystemVersionNamespaceIsGlobal(t *testing.T) {
	ledger, objects, mock := newTestLedger(t)

	// A different system already holds 2.0.0. The duplicate pre-check keys on
	// the version alone, so this target's create is rejected too.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM releases WHERE kind = 'system' AND version = \$1`).
		WithArgs("2.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "2.0.0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("x")}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateVersion)
	assert.Empty(t, objects.blobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolationAtCommit(t *testing.T) {
	ledger, objects, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM releases`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectIngest(mock, 21)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO releases`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	// Compensation removes the freshly ingested artifact.
	mock.ExpectExec(`DELETE FROM artifacts`).
		WithArgs(int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1.0.0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("racy bytes")}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateVersion)
	assert.Empty(t, objects.blobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWrapsInfrastructureFailure(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM releases`).
		WillReturnError(fmt.Errorf("connection refused"))

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1.0.0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("x")}}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateRequiresPlatformForCore(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	target := Target{Kind: models.ReleaseKindCore, ID: 4, OwnerTeamID: memberTeamID}

	_, err := ledger.Create(context.Background(), member, target, nil, "1.0.0", Meta{},
		[]File{{Filename: "core.bin", Content: strings.NewReader("x")}}, nil)
	assert.ErrorIs(t, err, ErrPlatformMismatch)
}

func TestCreateForbidsPlatformForSystem(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	platformID := int64(2)

	_, err := ledger.Create(context.Background(), member, systemTarget(), &platformID, "1.0.0", Meta{},
		[]File{{Filename: "bios.bin", Content: strings.NewReader("x")}}, nil)
	assert.ErrorIs(t, err, ErrPlatformMismatch)
}

func TestCreateRequiresArtifacts(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1.0.0", Meta{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestCreateRejectsDuplicateFilenames(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.Create(context.Background(), member, systemTarget(), nil, "1.0.0", Meta{},
		[]File{
			{Filename: "bios.bin", Content: strings.NewReader("a")},
			{Filename: "bios.bin", Content: strings.NewReader("b")},
		}, nil)
	assert.ErrorIs(t, err, ErrDuplicateFilename)
}

func TestCreateCoreRelease(t *testing.T) {
	ledger, _, mock := newTestLedger(t)
	platformID := int64(2)
	target := Target{Kind: models.ReleaseKindCore, ID: 4, OwnerTeamID: memberTeamID}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM releases WHERE kind = 'core' AND core_id`).
		WithArgs(int64(4), int64(2), "2.0.0-rc1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectIngest(mock, 30)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO releases`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "links", "metadata", "released_at", "uploaded_at"}).
			AddRow(int64(8), []byte(`{}`), []byte(`{}`), time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO release_artifacts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	release, err := ledger.Create(context.Background(), member, target, &platformID, "2.0.0-rc1",
		Meta{Prerelease: true},
		[]File{{Filename: "core.so", MimeType: "application/octet-stream", Content: strings.NewReader("core bytes")}}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ReleaseKindCore, release.Kind)
	assert.Equal(t, int64(4), *release.CoreID)
	assert.Equal(t, int64(2), *release.PlatformID)
	assert.True(t, release.Prerelease)
}

type driverValue = driver.Value

// releaseRow builds one row for the releaseCols column set.
func releaseRow(id int64, version string, prerelease, yanked bool) []driverValue {
	return []driverValue{
		id, models.ReleaseKindSystem, nil, int64(10), nil, version, nil,
		prerelease, yanked, []byte(`{}`), []byte(`{}`), memberUserID, memberTeamID,
		time.Now(), time.Now(), "uploader",
	}
}

func TestLatestNilWhenNone(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(sqlmock.NewRows(releaseCols))

	release, err := ledger.Latest(context.Background(), systemTarget(), nil, false)
	require.NoError(t, err)
	assert.Nil(t, release)
}

func TestGetNotFound(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(sqlmock.NewRows(releaseCols))

	_, err := ledger.Get(context.Background(), systemTarget(), nil, "9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestYank(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "1.0.0", false, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WithArgs(int64(5)).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE releases SET yanked = TRUE`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	release, err := ledger.Yank(context.Background(), member, 5)
	require.NoError(t, err)
	assert.True(t, release.Yanked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestYankIsOneWay(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "1.0.0", false, true)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)

	_, err := ledger.Yank(context.Background(), member, 5)
	assert.ErrorIs(t, err, ErrAlreadyYanked)
}

func TestYankNotFound(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(sqlmock.NewRows(releaseCols))

	_, err := ledger.Yank(context.Background(), member, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestYankForbiddenForNonMember(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "1.0.0", false, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)

	_, err := ledger.Yank(context.Background(), outsider, 5)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestEditPromotesPrerelease(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "2.0.0-rc1", true, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE releases`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	release, err := ledger.Edit(context.Background(), member, 5, EditRequest{Promote: true})
	require.NoError(t, err)
	assert.False(t, release.Prerelease)
}

func TestEditUpdatesNotes(t *testing.T) {
	ledger, _, mock := newTestLedger(t)
	notes := "fixes save-state corruption"

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "1.0.0", false, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE releases`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	release, err := ledger.Edit(context.Background(), member, 5, EditRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, &notes, release.Notes)
}

func TestEditRejectsPrereleaseRestore(t *testing.T) {
	// Promotion is one-way: once a release has shed the prerelease flag an
	// edit cannot set it back. No UPDATE is issued.
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "2.0.0", false, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)

	restore := true
	_, err := ledger.Edit(context.Background(), member, 5, EditRequest{Prerelease: &restore})
	assert.ErrorIs(t, err, ErrPrereleaseRestore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditExplicitPrereleaseFalsePromotes(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "2.0.0-rc1", true, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE releases`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	demote := false
	release, err := ledger.Edit(context.Background(), member, 5, EditRequest{Prerelease: &demote})
	require.NoError(t, err)
	assert.False(t, release.Prerelease)
}

func TestEditWithoutChangesIsANoop(t *testing.T) {
	ledger, _, mock := newTestLedger(t)

	rows := sqlmock.NewRows(releaseCols)
	rows.AddRow(releaseRow(5, "1.0.0", false, false)...)
	mock.ExpectQuery(`SELECT .+ FROM releases r`).
		WillReturnRows(rows)

	_, err := ledger.Edit(context.Background(), member, 5, EditRequest{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
