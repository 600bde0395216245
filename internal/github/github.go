// Package github implements the GitHub App flow used to reach private
// repositories: app JWT, installation discovery, installation tokens and a
// repository accessibility probe.
package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hangar-sh/hangar/internal/apperr"
)

const defaultBaseURL = "https://api.github.com"

// Client talks to the GitHub REST API as a GitHub App.
type Client struct {
	appID      string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	baseURL    string
}

// New builds a client from the App id and its PEM-encoded RSA private key.
func New(appID string, privateKeyPEM []byte) (*Client, error) {
	if appID == "" {
		return nil, fmt.Errorf("github app id cannot be empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse github app private key: %w", err)
	}
	return &Client{
		appID:      appID,
		privateKey: key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}, nil
}

// appJWT mints the short-lived app-level token. Issued-at is backdated a
// minute to absorb clock skew between us and GitHub.
func (c *Client) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    c.appID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

type installation struct {
	ID      int64 `json:"id"`
	Account struct {
		Login string `json:"login"`
	} `json:"account"`
}

// FindInstallation returns the installation id for the account that owns the
// repository. A missing installation means the account never installed the
// app, which the caller surfaces as account-not-linked.
func (c *Client) FindInstallation(ctx context.Context, owner string) (int64, error) {
	token, err := c.appJWT()
	if err != nil {
		return 0, apperr.Internal(err)
	}

	var installations []installation
	if err := c.doJSON(ctx, http.MethodGet, "/app/installations", "Bearer "+token, &installations); err != nil {
		return 0, apperr.Internal(fmt.Errorf("list app installations: %w", err))
	}
	for _, inst := range installations {
		if strings.EqualFold(inst.Account.Login, owner) {
			return inst.ID, nil
		}
	}
	return 0, apperr.Source(apperr.CodeAccountNotLinked,
		fmt.Sprintf("github account %s has not installed the app", owner), nil)
}

// InstallationToken mints a repository-scoped access token for the
// installation.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	appToken, err := c.appJWT()
	if err != nil {
		return "", apperr.Internal(err)
	}

	var minted struct {
		Token string `json:"token"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if err := c.doJSON(ctx, http.MethodPost, path, "Bearer "+appToken, &minted); err != nil {
		return "", apperr.Internal(fmt.Errorf("mint installation token: %w", err))
	}
	if minted.Token == "" {
		return "", apperr.Internal(fmt.Errorf("installation token response carried no token"))
	}
	return minted.Token, nil
}

// CheckRepoAccess verifies the installation token can see the repository.
// A 404 means the repository is private to the token or does not exist.
func (c *Client) CheckRepoAccess(ctx context.Context, token, owner, repo string) error {
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	req, err := c.newRequest(ctx, http.MethodGet, path, "token "+token)
	if err != nil {
		return apperr.Internal(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Internal(fmt.Errorf("check repository access: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Source(apperr.CodeRepoNotAccessible,
			fmt.Sprintf("repository %s/%s is not accessible to the app installation", owner, repo), nil)
	default:
		return apperr.Internal(fmt.Errorf("check repository access: unexpected status %d", resp.StatusCode))
	}
}

func (c *Client) newRequest(ctx context.Context, method, path, authorization string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, authorization string, out any) error {
	req, err := c.newRequest(ctx, method, path, authorization)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
