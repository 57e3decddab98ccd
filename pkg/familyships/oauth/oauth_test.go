package oauth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/ownership"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeGitHub serves the token endpoint and the /user API.
func fakeGitHub(t *testing.T, login, name string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"bad_verification_code"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gh-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"login": login, "name": name})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupTestRouter(t *testing.T, gh *httptest.Server) (*gin.Engine, *auth.Tokens, *store.Store) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)

	gin.SetMode(gin.TestMode)
	s := store.New(db, 5*time.Second)
	tokens := auth.NewTokens("test-secret", time.Hour)
	handler := NewHandler(Config{
		BaseURL:        "http://familyships.test",
		GitHubClientID: "client-id",
	}, ownership.NewGate(s, nil), tokens, nil)

	gp := handler.providers[identity.ProviderGitHub].(*githubProvider)
	gp.config.Endpoint = oauth2.Endpoint{
		AuthURL:   gh.URL + "/login/oauth/authorize",
		TokenURL:  gh.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	gp.apiBase = gh.URL

	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/auth"))
	return r, tokens, s
}

// startLogin runs the login step and returns the state and its cookie.
func startLogin(t *testing.T, router *gin.Engine, query string) (string, *http.Cookie) {
	req, _ := http.NewRequest("GET", "/api/auth/github/login"+query, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		AuthURL string `json:"auth_url"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	authURL, err := url.Parse(body.AuthURL)
	if err != nil {
		t.Fatalf("Invalid auth_url %q: %v", body.AuthURL, err)
	}

	cookies := resp.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Expected a state cookie")
	}
	return authURL.Query().Get("state"), cookies[0]
}

func callback(router *gin.Engine, state, code string, cookie *http.Cookie) *httptest.ResponseRecorder {
	q := url.Values{"state": {state}, "code": {code}}
	req, _ := http.NewRequest("GET", "/api/auth/github/callback?"+q.Encode(), nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestListProviders(t *testing.T) {
	router, _, _ := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))

	req, _ := http.NewRequest("GET", "/api/auth/providers", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if !strings.Contains(resp.Body.String(), `"github"`) || strings.Contains(resp.Body.String(), `"google"`) {
		t.Errorf("Expected only github to be enabled, got %s", resp.Body.String())
	}
}

func TestGitHubLoginProvisionsTree(t *testing.T) {
	router, tokens, s := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))

	state, cookie := startLogin(t, router, "")
	resp := callback(router, state, "good-code", cookie)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body auth.AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.User.ExternalID != "octocat" || body.User.Name != "Octo" {
		t.Errorf("Unexpected user %+v", body.User)
	}
	if body.User.TreeID == 0 {
		t.Error("Expected a tree id")
	}

	claims, err := tokens.ValidateToken(body.Token)
	if err != nil {
		t.Fatalf("Expected a valid session token, got %v", err)
	}
	if claims.Provider != "github" {
		t.Errorf("Expected provider github, got %s", claims.Provider)
	}

	// Logging in again reuses the tree
	state, cookie = startLogin(t, router, "")
	resp = callback(router, state, "good-code", cookie)
	var again auth.AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &again)
	if again.User.TreeID != body.User.TreeID {
		t.Errorf("Expected tree %d, got %d", body.User.TreeID, again.User.TreeID)
	}

	count, _ := store.CountByForeignKey[models.UserIdentity](t.Context(), s, "provider", "github")
	if count != 1 {
		t.Errorf("Expected 1 identity, got %d", count)
	}
}

func TestGitHubLoginFallsBackToLoginForName(t *testing.T) {
	router, _, _ := setupTestRouter(t, fakeGitHub(t, "ghost", ""))

	state, cookie := startLogin(t, router, "")
	resp := callback(router, state, "good-code", cookie)

	var body auth.AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.User.Name != "ghost" {
		t.Errorf("Expected name ghost, got %s", body.User.Name)
	}
}

func TestCallbackRejectsBadState(t *testing.T) {
	router, _, _ := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))
	state, cookie := startLogin(t, router, "")

	if resp := callback(router, "not-base64!", "good-code", cookie); resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for garbage state, got %d", resp.Code)
	}
	if resp := callback(router, state, "good-code", nil); resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without state cookie, got %d", resp.Code)
	}
	if resp := callback(router, state, "bad-code", cookie); resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for rejected code, got %d", resp.Code)
	}
}

func TestCallbackRedirectsToReturnURL(t *testing.T) {
	router, tokens, _ := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))

	state, cookie := startLogin(t, router, "?return_url="+url.QueryEscape("/app?tab=1"))
	resp := callback(router, state, "good-code", cookie)

	if resp.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d: %s", resp.Code, resp.Body.String())
	}
	loc, err := url.Parse(resp.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Invalid redirect location: %v", err)
	}
	if loc.Path != "/app" || loc.Host != "" {
		t.Errorf("Expected redirect to /app, got %s", loc)
	}
	if loc.Query().Get("tab") != "1" {
		t.Errorf("Expected existing query to survive, got %s", loc.RawQuery)
	}
	if _, err := tokens.ValidateToken(loc.Query().Get("token")); err != nil {
		t.Errorf("Expected a valid session token in the redirect: %v", err)
	}
}

func TestParseReturnURL(t *testing.T) {
	h := NewHandler(Config{BaseURL: "https://familyships.test/"}, nil, nil, nil)

	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"/app", true},
		{"/app?tab=1#top", true},
		{"https://familyships.test/app", true},
		{"HTTPS://FamilyShips.test/app", true},
		{"//evil.example/steal", false},
		{"///evil.example/steal", false},
		{"/\\evil.example/steal", false},
		{"\\\\evil.example", false},
		{"/\t/evil.example", false},
		{"/\n/evil.example", false},
		{"https://evil.example/", false},
		{"http://familyships.test/app", false},
		{"https://familyships.test.evil.example/", false},
		{"https://user@familyships.test/app", false},
		{"javascript:alert(1)", false},
		{"app", false},
	}
	for _, tt := range tests {
		if _, got := h.parseReturnURL(tt.raw); got != tt.want {
			t.Errorf("parseReturnURL(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCallbackRechecksReturnURL(t *testing.T) {
	router, _, _ := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))
	_, cookie := startLogin(t, router, "")

	// A hand-built state that never went through the login step
	forged, _ := json.Marshal(StateData{
		Provider:  identity.ProviderGitHub,
		ReturnURL: "/\\evil.example/steal",
		Nonce:     cookie.Value,
	})
	resp := callback(router, base64.URLEncoding.EncodeToString(forged), "good-code", cookie)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
	if loc := resp.Header().Get("Location"); loc != "" {
		t.Errorf("Expected no redirect, got %s", loc)
	}
}

func TestLoginRejectsForeignReturnURL(t *testing.T) {
	router, _, _ := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))

	for _, returnURL := range []string{"https://evil.example/", "/\\evil.example/steal", "/\t/evil.example"} {
		req, _ := http.NewRequest("GET", "/api/auth/github/login?return_url="+url.QueryEscape(returnURL), nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %q, got %d", returnURL, resp.Code)
		}
	}
}

func TestUnknownProvider(t *testing.T) {
	router, _, _ := setupTestRouter(t, fakeGitHub(t, "octocat", "Octo"))

	req, _ := http.NewRequest("GET", "/api/auth/google/login", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for disabled provider, got %d", resp.Code)
	}
}
