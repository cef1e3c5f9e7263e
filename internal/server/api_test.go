package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-io/inkwell/internal/config"
	"github.com/inkwell-io/inkwell/internal/quota"
	"github.com/inkwell-io/inkwell/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var postColumns = []string{"pid", "post_uuid", "user_id", "post_title", "post_body", "created_on", "updated_on"}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Env:  "test",
		},
		JWT: config.JWTConfig{
			Secret:   "test-secret-key-for-server-testing",
			Issuer:   "https://example.com",
			Audience: "https://example.com/api",
			TokenTTL: config.DefaultTokenTTL,
		},
	}
}

// memoryLedger mirrors the storage-backed ledgers for handler tests.
type memoryLedger struct {
	usage map[string]int64
}

func newMemoryLedger(userIDs ...string) *memoryLedger {
	l := &memoryLedger{usage: make(map[string]int64)}
	for _, id := range userIDs {
		l.usage[id] = 0
	}
	return l
}

func (m *memoryLedger) CheckAndIncrement(_ context.Context, userID string, maxQuota int64) error {
	if maxQuota == 0 {
		return nil
	}
	if _, ok := m.usage[userID]; !ok {
		return quota.ErrUserNotFound
	}
	if m.usage[userID] >= maxQuota {
		return quota.ErrQuotaExceeded
	}
	m.usage[userID]++
	return nil
}

type testServer struct {
	cfg    *config.Config
	mock   pgxmock.PgxPoolIface
	ledger *memoryLedger
	router http.Handler
	apiKey string
}

func newTestServer(t *testing.T, subject string, maxQuota int64) *testServer {
	t.Helper()

	cfg := testConfig()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)

	ledger := newMemoryLedger(subject)
	srv := NewAPIServer(cfg, mock, ledger)

	apiKey, err := token.NewCodec(&cfg.JWT).Encode(subject, maxQuota, time.Hour)
	require.NoError(t, err)

	return &testServer{
		cfg:    cfg,
		mock:   mock,
		ledger: ledger,
		router: srv.Router(),
		apiKey: apiKey,
	}
}

func (ts *testServer) request(method, path, clientID, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+ts.apiKey)
	}
	if clientID != "" {
		req.Header.Set("X-Api-Client-Id", clientID)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpointIsUnguarded(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()
	ts.apiKey = ""

	w := ts.request("GET", "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestIndexReportsNotAuthenticated(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()
	ts.apiKey = ""

	w := ts.request("GET", "/api/v1/", "", "")
	require.Equal(t, http.StatusNonAuthoritativeInfo, w.Code)

	var body struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "Not Authenticated", body.Message)
}

func TestListPosts(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	now := time.Now()
	ts.mock.ExpectQuery(`SELECT pid, .+ FROM posts\s+ORDER BY pid\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow(int64(1), uuid.New(), int64(1), "First post", "Hello", now, now))

	w := ts.request("GET", "/api/v1/posts", "42", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status int `json:"status"`
		Items  []struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
			Link  string `json:"link"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "First post", body.Items[0].Title)
	require.Equal(t, "/api/v1/posts/1", body.Items[0].Link)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestReadPost_NotFound(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	ts.mock.ExpectQuery(`SELECT pid, .+ FROM posts WHERE pid = \$1`).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	w := ts.request("GET", "/api/v1/posts/404", "42", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadPost_InvalidID(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	w := ts.request("GET", "/api/v1/posts/abc", "42", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePost(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	now := time.Now()
	ts.mock.ExpectQuery(`INSERT INTO posts \(post_uuid, user_id, post_title, post_body\)`).
		WithArgs(pgxmock.AnyArg(), int64(42), "A new post", "Content here").
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow(int64(9), uuid.New(), int64(42), "A new post", "Content here", now, now))

	w := ts.request("POST", "/api/v1/posts/create", "42",
		`{"userId":42,"title":"A new post","body":"Content here"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "Post was successfully created.", body.Message)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestCreatePost_InvalidTitle(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	w := ts.request("POST", "/api/v1/posts/create", "42",
		`{"userId":42,"title":"ab","body":"Content"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePost_ScopedToOwner(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	// The update is keyed on both post id and the acting user from
	// the client id header.
	ts.mock.ExpectExec(`UPDATE posts\s+SET .+ WHERE pid = \$3 AND user_id = \$4`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), int64(5), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := ts.request("PUT", "/api/v1/posts/update/5", "42", `{"title":"Edited title"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestUpdatePost_EmptyBodyIsNoOp(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	w := ts.request("PUT", "/api/v1/posts/update/5", "42", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "No updates made for post ID: 5.", body.Message)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestDeletePost(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	ts.mock.ExpectExec(`DELETE FROM posts WHERE pid = \$1 AND user_id = \$2`).
		WithArgs(int64(5), int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	w := ts.request("DELETE", "/api/v1/posts/delete/5", "42", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestGuardedRoutes_QuotaLifecycle(t *testing.T) {
	ts := newTestServer(t, "42", 2)
	defer ts.mock.Close()

	now := time.Now()
	for i := 0; i < 2; i++ {
		ts.mock.ExpectQuery(`SELECT pid, .+ FROM posts\s+ORDER BY pid`).
			WithArgs(10, 0).
			WillReturnRows(pgxmock.NewRows(postColumns).
				AddRow(int64(1), uuid.New(), int64(1), "Post", "Body", now, now))
	}

	// Ceiling of 2 admits exactly two requests.
	for i := 0; i < 2; i++ {
		w := ts.request("GET", "/api/v1/posts", "42", "")
		require.Equalf(t, http.StatusOK, w.Code, "request %d should pass the gate", i+1)
	}

	w := ts.request("GET", "/api/v1/posts", "42", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body struct {
		Status  int    `json:"status"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "QUOTA_EXCEEDED", body.Reason)
	require.Equal(t, "API authentication failed: Quota exceeded limit: 2", body.Message)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestGuardedRoutes_SubjectMismatch(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	// Token says 42, header says 7: nothing reaches the handler or
	// the database.
	w := ts.request("GET", "/api/v1/posts", "7", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "SUBJECT_MISMATCH", body.Reason)
	require.Equal(t, int64(0), ts.ledger.usage["42"])
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestGuardedRoutes_MissingToken(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()
	ts.apiKey = ""

	w := ts.request("GET", "/api/v1/posts", "42", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	ts := newTestServer(t, "42", 10)
	defer ts.mock.Close()

	now := time.Now()
	ts.mock.ExpectQuery(`SELECT user_id, .+ FROM users\s+ORDER BY user_id`).
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "user_name", "user_email", "api_usage_quota", "created_on", "updated_on"}).
			AddRow(int64(1), "Peter", "peter@example.com", int64(3), now, now))

	w := ts.request("GET", "/api/v1/users", "42", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []struct {
			Name          string `json:"name"`
			APIUsageQuota int64  `json:"api_usage_quota"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "Peter", body.Items[0].Name)
	require.Equal(t, int64(3), body.Items[0].APIUsageQuota)
	require.NoError(t, ts.mock.ExpectationsWereMet())
}
