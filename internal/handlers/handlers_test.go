package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"expense-ledger/internal/audit"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/auth/secret"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const templateDir = "../../web/templates"

type listedExpense struct {
	ID          int64  `json:"id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// HandlersTestSuite drives the HTTP surface through a real server.
type HandlersTestSuite struct {
	suite.Suite
	db     *storage.DB
	server *httptest.Server
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	logger := zap.NewNop()
	credentials := auth.NewCredentials(db)
	resolver := auth.NewResolver(db, credentials, logger)
	l := ledger.New(db, audit.NewRecorder(db, logger), logger)
	h := NewHandlers(credentials, resolver, l, logger, templateDir, false)

	suite.server = httptest.NewServer(h.Routes("../../web/static"))
}

func (suite *HandlersTestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Close()
	}
	if suite.db != nil {
		suite.db.Close()
	}
}

// client returns a cookie-keeping client that does not follow redirects.
func (suite *HandlersTestSuite) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (suite *HandlersTestSuite) postForm(c *http.Client, path string, values url.Values) *http.Response {
	resp, err := c.PostForm(suite.server.URL+path, values)
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (suite *HandlersTestSuite) postJSON(c *http.Client, path string, body any) *http.Response {
	data, err := json.Marshal(body)
	require.NoError(suite.T(), err)
	resp, err := c.Post(suite.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (suite *HandlersTestSuite) get(c *http.Client, path string) *http.Response {
	resp, err := c.Get(suite.server.URL + path)
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (suite *HandlersTestSuite) registerAndLogin(username, password string) *http.Client {
	c := suite.client()
	resp := suite.postForm(c, "/auth/register", url.Values{"username": {username}, "password": {password}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	resp = suite.postForm(c, "/auth/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/expenses", resp.Header.Get("Location"))
	return c
}

func (suite *HandlersTestSuite) list(c *http.Client) []listedExpense {
	resp := suite.get(c, "/list")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), "application/json", resp.Header.Get("Content-Type"))

	var out []listedExpense
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (suite *HandlersTestSuite) TestCrudCycle() {
	c := suite.registerAndLogin("u1", "p1")

	resp := suite.postForm(c, "/add", url.Values{"amount": {"100.5"}, "category": {"food"}, "description": {"lunch"}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/expenses", resp.Header.Get("Location"))

	expenses := suite.list(c)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), "100.5", expenses[0].Amount)
	assert.Equal(suite.T(), "food", expenses[0].Category)
	assert.Equal(suite.T(), "lunch", expenses[0].Description)
	id := expenses[0].ID

	resp = suite.postJSON(c, "/edit", map[string]any{"id": id, "category": "groceries"})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	expenses = suite.list(c)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), id, expenses[0].ID)
	assert.Equal(suite.T(), "groceries", expenses[0].Category)
	assert.Equal(suite.T(), "100.5", expenses[0].Amount)
	assert.Equal(suite.T(), "lunch", expenses[0].Description)

	resp = suite.postJSON(c, "/delete", map[string]any{"id": id})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	assert.Empty(suite.T(), suite.list(c))

	resp = suite.get(c, "/audit")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	var entries []models.AuditLogEntry
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(suite.T(), entries, 3)
	assert.Equal(suite.T(), models.ActionDelete, entries[2].Action)
	require.NotNil(suite.T(), entries[2].ExpenseID)
	assert.Equal(suite.T(), id, *entries[2].ExpenseID)
}

func (suite *HandlersTestSuite) TestAddAcceptsJSONBody() {
	c := suite.registerAndLogin("u1", "p1")

	resp := suite.postJSON(c, "/add", map[string]any{"amount": 12.75, "category": "transport", "description": "bus"})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	expenses := suite.list(c)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), "12.75", expenses[0].Amount)
}

func (suite *HandlersTestSuite) TestAddValidation() {
	c := suite.registerAndLogin("u1", "p1")

	resp := suite.postForm(c, "/add", url.Values{"amount": {"lots"}, "category": {"food"}})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.postJSON(c, "/add", "not an object")
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	assert.Empty(suite.T(), suite.list(c))
}

func (suite *HandlersTestSuite) TestForeignExpenseIsNotFound() {
	owner := suite.registerAndLogin("owner", "p1")
	suite.postForm(owner, "/add", url.Values{"amount": {"5"}, "category": {"food"}, "description": {"mine"}})
	id := suite.list(owner)[0].ID

	intruder := suite.registerAndLogin("intruder", "p2")

	resp := suite.postJSON(intruder, "/edit", map[string]any{"id": id, "category": "hacked"})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
	foreignBody, _ := io.ReadAll(resp.Body)

	resp = suite.postForm(intruder, "/delete", url.Values{"id": {strconv.FormatInt(id, 10)}})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp = suite.postJSON(intruder, "/edit", map[string]any{"id": id + 1000, "category": "x"})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
	missingBody, _ := io.ReadAll(resp.Body)
	assert.Equal(suite.T(), string(missingBody), string(foreignBody), "responses must not reveal ownership")

	resp = suite.postForm(intruder, "/delete", url.Values{"id": {"abc"}})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	expenses := suite.list(owner)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), "food", expenses[0].Category)
}

func (suite *HandlersTestSuite) TestUnauthenticatedRequestsRedirect() {
	c := suite.client()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/expenses"},
		{http.MethodGet, "/list"},
		{http.MethodGet, "/stats"},
		{http.MethodGet, "/audit"},
		{http.MethodPost, "/add"},
		{http.MethodPost, "/edit"},
		{http.MethodPost, "/delete"},
	} {
		req, err := http.NewRequest(tc.method, suite.server.URL+tc.path, strings.NewReader("amount=1&category=food&id=1"))
		require.NoError(suite.T(), err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := c.Do(req)
		require.NoError(suite.T(), err)
		resp.Body.Close()

		assert.Equal(suite.T(), http.StatusFound, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(suite.T(), "/login", resp.Header.Get("Location"), "%s %s", tc.method, tc.path)
	}

	count, err := suite.db.UserCount(context.Background())
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), count)
}

func (suite *HandlersTestSuite) TestRegisterErrors() {
	c := suite.client()

	resp := suite.postForm(c, "/auth/register", url.Values{"username": {"u1"}})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(suite.T(), string(body), "username and password required")

	resp = suite.postForm(c, "/auth/register", url.Values{"username": {"u1"}, "password": {"p1"}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login?registered=1", resp.Header.Get("Location"))

	resp = suite.postForm(c, "/auth/register", url.Values{"username": {"u1"}, "password": {"p2"}})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(suite.T(), string(body), "username taken")
}

func (suite *HandlersTestSuite) TestLoginFailure() {
	c := suite.client()
	suite.postForm(c, "/auth/register", url.Values{"username": {"u1"}, "password": {"p1"}})

	for _, creds := range []url.Values{
		{"username": {"u1"}, "password": {"wrong"}},
		{"username": {"ghost"}, "password": {"p1"}},
	} {
		resp := suite.postForm(c, "/auth/login", creds)
		assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(suite.T(), string(body), "invalid credentials")
	}
}

func (suite *HandlersTestSuite) TestLogoutInvalidatesSession() {
	c := suite.registerAndLogin("u1", "p1")
	u, err := url.Parse(suite.server.URL)
	require.NoError(suite.T(), err)
	cookies := c.Jar.Cookies(u)
	require.NotEmpty(suite.T(), cookies)

	resp := suite.postForm(c, "/auth/logout", nil)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	// Replaying the old token must not work either.
	replay := suite.client()
	replay.Jar.SetCookies(u, cookies)
	resp = suite.get(replay, "/list")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestPagesRender() {
	anon := suite.client()
	resp := suite.get(anon, "/")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	resp = suite.get(anon, "/login")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(suite.T(), string(body), "login-form")

	c := suite.registerAndLogin("u1", "p1")
	suite.postForm(c, "/add", url.Values{"amount": {"9.99"}, "category": {"food"}, "description": {"Pizza"}})
	suite.postForm(c, "/add", url.Values{"amount": {"0.01"}, "category": {"housing"}, "description": {"Rent share"}})

	resp = suite.get(c, "/")
	assert.Equal(suite.T(), "/expenses", resp.Header.Get("Location"))

	resp = suite.get(c, "/expenses")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(suite.T(), string(body), "Pizza")
	assert.Contains(suite.T(), string(body), "10.00")

	resp = suite.get(c, "/stats")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(suite.T(), string(body), "99.9%")
	assert.NotEmpty(suite.T(), resp.Header.Get(RequestIDHeader))
}

func (suite *HandlersTestSuite) TestOversizedBodyIsRejected() {
	c := suite.registerAndLogin("u1", "p1")

	resp := suite.postJSON(c, "/add", map[string]any{
		"amount":      "1",
		"category":    "food",
		"description": strings.Repeat("x", maxBodyBytes),
	})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.postForm(c, "/add", url.Values{
		"amount":      {"1"},
		"category":    {"food"},
		"description": {strings.Repeat("y", maxBodyBytes)},
	})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	assert.Empty(suite.T(), suite.list(c))
}

func (suite *HandlersTestSuite) TestLoginPageRefreshesRenewedSession() {
	suite.registerAndLogin("u1", "p1")
	ctx := context.Background()
	user, err := suite.db.GetUserByUsername(ctx, "u1")
	require.NoError(suite.T(), err)

	// a session well past half its lifetime gets renewed on the next lookup
	token, err := secret.NewSessionToken()
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.db.CreateSession(ctx, token, user.ID, time.Now().Add(24*time.Hour)))

	for _, path := range []string{"/login", "/"} {
		req, err := http.NewRequest(http.MethodGet, suite.server.URL+path, http.NoBody)
		require.NoError(suite.T(), err)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

		resp, err := suite.client().Do(req)
		require.NoError(suite.T(), err)
		resp.Body.Close()
		assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
		assert.Equal(suite.T(), "/expenses", resp.Header.Get("Location"))

		if path == "/login" {
			var refreshed *http.Cookie
			for _, ck := range resp.Cookies() {
				if ck.Name == SessionCookieName {
					refreshed = ck
				}
			}
			require.NotNil(suite.T(), refreshed, "renewed session must refresh the cookie")
			assert.Equal(suite.T(), token, refreshed.Value)
			assert.Equal(suite.T(), int(auth.SessionDuration.Seconds()), refreshed.MaxAge)
		} else {
			assert.Empty(suite.T(), resp.Cookies(), "fresh session needs no cookie refresh")
		}
	}

	info, err := suite.db.ValidateSessionWithInfo(ctx, token)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), info.ExpiresAt.After(time.Now().Add(auth.SessionDuration/2)))
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
