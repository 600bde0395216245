package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hangar-sh/hangar/internal/apperr"
)

func testClient(t *testing.T, server *httptest.Server) (*Client, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c := &Client{
		appID:      "12345",
		privateKey: key,
		httpClient: http.DefaultClient,
	}
	if server != nil {
		c.httpClient = server.Client()
		c.baseURL = server.URL
	}
	return c, key
}

func TestAppJWTClaims(t *testing.T) {
	c, key := testClient(t, nil)

	signed, err := c.appJWT()
	if err != nil {
		t.Fatalf("appJWT: %v", err)
	}

	claims := jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodRS256 {
			t.Fatalf("signing method = %v, want RS256", token.Method)
		}
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("parse signed jwt: %v", err)
	}

	if claims.Issuer != "12345" {
		t.Fatalf("issuer = %q, want 12345", claims.Issuer)
	}
	now := time.Now()
	if !claims.IssuedAt.Time.Before(now.Add(-30 * time.Second)) {
		t.Fatalf("issued-at %v not backdated", claims.IssuedAt.Time)
	}
	lifetime := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if lifetime != 11*time.Minute {
		t.Fatalf("lifetime = %v, want 11m (10m plus 60s backdate)", lifetime)
	}
}

func TestFindInstallationMatchesCaseInsensitively(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/installations" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Fatalf("missing bearer app jwt, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`[
			{"id": 7, "account": {"login": "SomeOrg"}},
			{"id": 9, "account": {"login": "AcmeCorp"}}
		]`))
	}))
	defer server.Close()

	c, _ := testClient(t, server)
	id, err := c.FindInstallation(context.Background(), "acmecorp")
	if err != nil {
		t.Fatalf("FindInstallation: %v", err)
	}
	if id != 9 {
		t.Fatalf("installation id = %d, want 9", id)
	}
}

func TestFindInstallationMissIsAccountNotLinked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id": 7, "account": {"login": "someoneelse"}}]`))
	}))
	defer server.Close()

	c, _ := testClient(t, server)
	_, err := c.FindInstallation(context.Background(), "acmecorp")
	if apperr.CodeOf(err) != apperr.CodeAccountNotLinked {
		t.Fatalf("code = %v, want account-not-linked", apperr.CodeOf(err))
	}
}

func TestInstallationToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/app/installations/9/access_tokens" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token": "ghs_minted"}`))
	}))
	defer server.Close()

	c, _ := testClient(t, server)
	token, err := c.InstallationToken(context.Background(), 9)
	if err != nil {
		t.Fatalf("InstallationToken: %v", err)
	}
	if token != "ghs_minted" {
		t.Fatalf("token = %q, want ghs_minted", token)
	}
}

func TestCheckRepoAccess(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acmecorp/blog" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token ghs_minted" {
			t.Fatalf("authorization = %q", got)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	c, _ := testClient(t, server)

	status = http.StatusOK
	if err := c.CheckRepoAccess(context.Background(), "ghs_minted", "acmecorp", "blog"); err != nil {
		t.Fatalf("CheckRepoAccess: %v", err)
	}

	status = http.StatusNotFound
	err := c.CheckRepoAccess(context.Background(), "ghs_minted", "acmecorp", "blog")
	if apperr.CodeOf(err) != apperr.CodeRepoNotAccessible {
		t.Fatalf("code = %v, want repo-not-accessible", apperr.CodeOf(err))
	}

	status = http.StatusInternalServerError
	err = c.CheckRepoAccess(context.Background(), "ghs_minted", "acmecorp", "blog")
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("kind = %v, want internal", apperr.KindOf(err))
	}
}

func TestParseRepoURL(t *testing.T) {
	valid := []struct {
		url   string
		owner string
		repo  string
	}{
		{"https://github.com/acmecorp/blog", "acmecorp", "blog"},
		{"https://github.com/acmecorp/blog.git", "acmecorp", "blog"},
		{"https://www.github.com/AcmeCorp/Blog/", "AcmeCorp", "Blog"},
		{"https://github.com/acmecorp/blog/tree/main", "acmecorp", "blog"},
	}
	for _, tc := range valid {
		owner, repo, err := ParseRepoURL(tc.url)
		if err != nil {
			t.Fatalf("ParseRepoURL(%q): %v", tc.url, err)
		}
		if owner != tc.owner || repo != tc.repo {
			t.Fatalf("ParseRepoURL(%q) = %q/%q, want %q/%q", tc.url, owner, repo, tc.owner, tc.repo)
		}
	}

	invalid := []string{
		"",
		"   ",
		"https://gitlab.com/acmecorp/blog",
		"https://github.com/acmecorp",
		"https://github.com/orgs/acmecorp",
		"https://github.com/settings/profile",
		"ftp://github.com/acmecorp/blog",
		"https://github.com//blog",
	}
	for _, raw := range invalid {
		if _, _, err := ParseRepoURL(raw); apperr.CodeOf(err) != apperr.CodeValidation {
			t.Fatalf("ParseRepoURL(%q): expected validation error, got %v", raw, err)
		}
	}
}
