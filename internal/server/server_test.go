package server

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/account"
	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/logqueue"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/packages"
	"github.com/askanna-io/askanna-core/internal/rbac"
	"github.com/askanna-io/askanna-core/internal/run"
	"github.com/askanna-io/askanna-core/internal/storage"
	"github.com/askanna-io/askanna-core/internal/store/memory"
	"github.com/askanna-io/askanna-core/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopNotifier struct{}

func (noopNotifier) RunStatusChanged(context.Context, *models.Run) {}

type noopDispatcher struct{}

func (noopDispatcher) DispatchRun(context.Context, *models.Run) error { return nil }

type apiFixture struct {
	store  *memory.Store
	files  *filestore.Service
	router *gin.Engine

	workspace *models.Workspace
	project   *models.Project
	job       *models.JobDef
	admin     *models.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	st := memory.NewStore()
	backend, err := storage.NewFileSystem(t.TempDir())
	require.NoError(t, err)
	locks := lock.NewLocal()
	files := filestore.NewService(st, backend, locks)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logs := logqueue.New(rdb, files, st, lock.NewLocal(), 100*time.Millisecond)

	tr := tracking.NewService(st, lock.NewLocal())
	runs := run.NewService(st, files, logs, tr, noopNotifier{}, noopDispatcher{}, locks)
	pkgs := packages.NewService(st, files, "UTC")
	signer := account.NewInvitationSigner([]byte("server-test-secret"), time.Hour)
	accounts := account.NewService(st, signer, 3)

	admin := &models.User{Name: "Robbert", Email: "robbert@example.com", IsActive: true, AuthToken: "admin-token"}
	require.NoError(t, st.CreateUser(ctx, admin))

	ws := &models.Workspace{Name: "team", Visibility: models.VisibilityPrivate}
	require.NoError(t, st.CreateWorkspace(ctx, ws))
	require.NoError(t, st.CreateMembership(ctx, &models.Membership{
		UserUUID:   &admin.UUID,
		ObjectType: models.MembershipObjectWorkspace,
		ObjectUUID: ws.UUID,
		RoleCode:   rbac.CodeWorkspaceAdmin,
	}))

	project := &models.Project{Name: "demo", WorkspaceUUID: ws.UUID, Visibility: models.VisibilityPrivate}
	require.NoError(t, st.CreateProject(ctx, project))
	job := &models.JobDef{
		Name:             "train",
		ProjectUUID:      project.UUID,
		EnvironmentImage: "python:3.11",
		Timezone:         "UTC",
	}
	require.NoError(t, st.CreateJob(ctx, job))

	srv := New(Deps{
		Store:    st,
		Files:    files,
		Logs:     logs,
		Runs:     runs,
		Tracking: tr,
		Packages: pkgs,
		Accounts: accounts,
	})

	return &apiFixture{
		store:     st,
		files:     files,
		router:    srv.Router(),
		workspace: ws,
		project:   project,
		job:       job,
		admin:     admin,
	}
}

// addUser creates an active user with a token and a workspace membership.
func (f *apiFixture) addUser(t *testing.T, token, roleCode string) *models.User {
	t.Helper()
	ctx := context.Background()

	user := &models.User{Name: token, Email: token + "@example.com", IsActive: true, AuthToken: token}
	require.NoError(t, f.store.CreateUser(ctx, user))
	require.NoError(t, f.store.CreateMembership(ctx, &models.Membership{
		UserUUID:   &user.UUID,
		ObjectType: models.MembershipObjectWorkspace,
		ObjectUUID: f.workspace.UUID,
		RoleCode:   roleCode,
	}))
	return user
}

// addPackage seeds a completed archive so runs can be created.
func (f *apiFixture) addPackage(t *testing.T) *models.Package {
	t.Helper()
	ctx := context.Background()

	pkg := &models.Package{ProjectUUID: f.project.UUID}
	require.NoError(t, f.store.CreatePackage(ctx, pkg))
	ref, err := f.store.ObjectReferenceFor(ctx, models.OwnerPackage, pkg.UUID, pkg.SUUID)
	require.NoError(t, err)
	archive, err := f.files.WriteDirect(ctx, filestore.Slot{Owner: ref, Name: "package.zip"}, []byte("PK\x03\x04fake"))
	require.NoError(t, err)
	pkg.FileUUID = &archive.UUID
	require.NoError(t, f.store.UpdatePackage(ctx, pkg))
	return pkg
}

func (f *apiFixture) do(method, path, token string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateRunEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)

	w := f.do(http.MethodPost,
		"/v1/job/"+f.job.SUUID+"/run/request/batch?name=nightly",
		"admin-token",
		[]byte(`{"epochs": 10}`),
		map[string]string{agentHeader: "cli"},
	)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode(t, w)
	require.Equal(t, "nightly", resp["name"])
	require.Equal(t, string(models.RunSubmitted), resp["status"])
	require.Equal(t, string(models.TriggerCLI), resp["trigger"])
	require.NotNil(t, resp["payload_file"])

	// The payload round-trips through the file store.
	r, err := f.store.GetRunBySUUID(context.Background(), resp["suuid"].(string))
	require.NoError(t, err)
	payloadFile, err := f.store.GetFileByUUID(context.Background(), *r.PayloadFile)
	require.NoError(t, err)
	rd, err := f.files.Open(context.Background(), payloadFile)
	require.NoError(t, err)
	defer rd.Close()
	content, err := io.ReadAll(rd)
	require.NoError(t, err)
	require.JSONEq(t, `{"epochs": 10}`, string(content))
}

func TestCreateRunWithoutPackageIsBadRequest(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnonymousCannotSeePrivateRun(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)

	created := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	require.Equal(t, http.StatusCreated, created.Code)
	suuid := decode(t, created)["suuid"].(string)

	// Denial masks existence for callers who cannot see the project.
	w := f.do(http.MethodGet, "/v1/run/"+suuid, "", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewerCannotEditRunStatus(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)
	f.addUser(t, "viewer-token", rbac.CodeWorkspaceViewer)

	created := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	suuid := decode(t, created)["suuid"].(string)

	// A viewer can see the run but not drive its lifecycle.
	w := f.do(http.MethodGet, "/v1/run/"+suuid, "viewer-token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPatch, "/v1/run/"+suuid+"/status/", "viewer-token",
		[]byte(`{"status": "PENDING"}`), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)

	created := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	suuid := decode(t, created)["suuid"].(string)

	for _, status := range []string{"PENDING", "IN_PROGRESS"} {
		w := f.do(http.MethodPatch, "/v1/run/"+suuid+"/status/", "admin-token",
			[]byte(fmt.Sprintf(`{"status": %q}`, status)), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(http.MethodPost, "/v1/run/"+suuid+"/log/", "admin-token",
		[]byte(`{"message": "training started"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPatch, "/v1/run/"+suuid+"/status/", "admin-token",
		[]byte(`{"status": "COMPLETED", "exit_code": 0}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(models.RunCompleted), decode(t, w)["status"])

	// A terminal run cannot move again.
	w = f.do(http.MethodPatch, "/v1/run/"+suuid+"/status/", "admin-token",
		[]byte(`{"status": "IN_PROGRESS"}`), nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCompletedWithNonZeroExitFails(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)

	created := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	suuid := decode(t, created)["suuid"].(string)

	for _, status := range []string{"PENDING", "IN_PROGRESS"} {
		w := f.do(http.MethodPatch, "/v1/run/"+suuid+"/status/", "admin-token",
			[]byte(fmt.Sprintf(`{"status": %q}`, status)), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(http.MethodPatch, "/v1/run/"+suuid+"/status/", "admin-token",
		[]byte(`{"status": "COMPLETED", "exit_code": 2}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(models.RunFailed), decode(t, w)["status"])
}

func TestRunLogPagination(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)

	created := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	suuid := decode(t, created)["suuid"].(string)

	for i := 1; i <= 5; i++ {
		w := f.do(http.MethodPost, "/v1/run/"+suuid+"/log/", "admin-token",
			[]byte(fmt.Sprintf(`{"message": "line %d"}`, i)), nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(http.MethodGet, "/v1/run/"+suuid+"/log?offset=1&limit=2", "admin-token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.EqualValues(t, 5, resp["count"])
	require.Len(t, resp["results"], 2)
}

func TestTrackingEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.addPackage(t)

	created := f.do(http.MethodPost, "/v1/job/"+f.job.SUUID+"/run/request/batch", "admin-token", nil, nil)
	suuid := decode(t, created)["suuid"].(string)

	w := f.do(http.MethodPut, "/v1/run/"+suuid+"/metric/", "admin-token",
		[]byte(`{"metrics": [{"name": "accuracy", "value": 0.92, "type": "float"}]}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPatch, "/v1/run/"+suuid+"/variable/", "admin-token",
		[]byte(`{"variables": [{"name": "API_KEY", "value": "hunter2", "type": "string"}]}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	r, err := f.store.GetRunBySUUID(context.Background(), suuid)
	require.NoError(t, err)
	require.NotNil(t, r.MetricsMeta)
	require.Equal(t, 1, r.MetricsMeta.Count)

	variables, err := f.store.ListVariables(context.Background(), r.UUID)
	require.NoError(t, err)
	require.Len(t, variables, 1)
	require.Equal(t, tracking.MaskedValue, variables[0].Value)
}

func packageArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestPackageUploadPipeline(t *testing.T) {
	f := newAPIFixture(t)
	archive := packageArchive(t, map[string]string{
		"askanna.yml": "my-job:\n  job:\n    - python train.py\n",
	})
	sum := md5.Sum(archive)

	body, err := json.Marshal(gin.H{
		"project_suuid": f.project.SUUID,
		"size":          len(archive),
		"etag":          hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)
	w := f.do(http.MethodPost, "/v1/package/", "admin-token", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	fileSUUID := decode(t, w)["file"].(map[string]any)["suuid"].(string)

	w = f.do(http.MethodPut, "/v1/storage/file/"+fileSUUID+"/part/?part_number=1", "admin-token", archive, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/storage/file/"+fileSUUID+"/complete/", "admin-token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Completion applied the config: the job now exists.
	_, err = f.store.GetJobByName(context.Background(), f.project.UUID, "my-job")
	require.NoError(t, err)
}

func TestCompleteWithEtagMismatchConflicts(t *testing.T) {
	f := newAPIFixture(t)
	archive := packageArchive(t, map[string]string{"askanna.yml": ""})

	body, err := json.Marshal(gin.H{
		"project_suuid": f.project.SUUID,
		"size":          len(archive),
		"etag":          "0000deadbeef0000deadbeef0000dead",
	})
	require.NoError(t, err)
	w := f.do(http.MethodPost, "/v1/package/", "admin-token", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	fileSUUID := decode(t, w)["file"].(map[string]any)["suuid"].(string)

	w = f.do(http.MethodPut, "/v1/storage/file/"+fileSUUID+"/part/?part_number=1", "admin-token", archive, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/storage/file/"+fileSUUID+"/complete/", "admin-token", nil, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestDownloadSupportsRanges(t *testing.T) {
	f := newAPIFixture(t)
	archive := packageArchive(t, map[string]string{"askanna.yml": ""})
	sum := md5.Sum(archive)

	body, err := json.Marshal(gin.H{
		"project_suuid": f.project.SUUID,
		"size":          len(archive),
		"etag":          hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)
	w := f.do(http.MethodPost, "/v1/package/", "admin-token", body, nil)
	fileSUUID := decode(t, w)["file"].(map[string]any)["suuid"].(string)

	w = f.do(http.MethodPut, "/v1/storage/file/"+fileSUUID+"/part/?part_number=1", "admin-token", archive, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/v1/storage/file/"+fileSUUID+"/complete/", "admin-token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/storage/file/"+fileSUUID+"/download/", "admin-token", nil,
		map[string]string{"Range": "bytes=0-3"})
	require.Equal(t, http.StatusPartialContent, w.Code)
	require.Equal(t, fmt.Sprintf("bytes 0-3/%d", len(archive)), w.Header().Get("Content-Range"))
	require.Equal(t, []byte("PK\x03\x04"), w.Body.Bytes())

	w = f.do(http.MethodGet, "/v1/storage/file/"+fileSUUID+"/download/", "admin-token", nil,
		map[string]string{"Range": fmt.Sprintf("bytes=%d-", len(archive)+100)})
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
}

func TestWorkspaceLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/workspace/", "admin-token",
		[]byte(`{"name": "research"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	wsSUUID := decode(t, w)["suuid"].(string)

	w = f.do(http.MethodPost, "/v1/workspace/"+wsSUUID+"/project/", "admin-token",
		[]byte(`{"name": "experiments", "visibility": "PUBLIC"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/v1/workspace/"+wsSUUID+"/invite/", "admin-token",
		[]byte(`{"email": "suzan@example.com"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	invite := decode(t, w)
	membershipSUUID := invite["suuid"].(string)
	token := invite["token"].(string)

	invitee := &models.User{Name: "Suzan", Email: "suzan@example.com", IsActive: true, AuthToken: "suzan-token"}
	require.NoError(t, f.store.CreateUser(context.Background(), invitee))

	body, err := json.Marshal(gin.H{"token": token})
	require.NoError(t, err)
	w = f.do(http.MethodPost, "/v1/workspace/"+wsSUUID+"/invite/"+membershipSUUID+"/accept/", "suzan-token", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Accepting a second time fails, the membership is no longer an invitation.
	w = f.do(http.MethodPost, "/v1/workspace/"+wsSUUID+"/invite/"+membershipSUUID+"/accept/", "suzan-token", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateWorkspaceRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/workspace/", "", []byte(`{"name": "research"}`), nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
