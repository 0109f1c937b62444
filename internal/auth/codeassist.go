package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/valerka1292/gemini-cli-proxy/internal/config"
)

const (
	codeAssistEndpoint = "https://cloudcode-pa.googleapis.com"
	apiVersion         = "v1internal"
)

// Client is the default AuthClient spec.md §1/§4.3 describes: an
// OAuth2-backed access_token()/invalidate_token() pair plus the project-id
// discovery the Gemini streaming client needs before it can call
// generateContent. Grounded on the teacher's
// internal/client/gemini-cli_client.go (SetupUser, makeAPIRequest's token
// lookup) and internal/auth/gemini/gemini_token.go.
type Client struct {
	httpClient *http.Client
	tokenPath  string
	source     oauth2.TokenSource

	mu        sync.RWMutex
	projectID string
	email     string
}

// New constructs a Client from a stored credential file, wiring an
// auto-refreshing OAuth2 transport via NewAuthenticatedClient.
func New(ctx context.Context, tokenPath string, cfg *config.Config) (*Client, error) {
	ts, err := LoadTokenFromFile(tokenPath)
	if err != nil {
		return nil, err
	}
	httpClient, source, err := NewAuthenticatedClient(ctx, ts, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{httpClient: httpClient, tokenPath: tokenPath, source: source, projectID: ts.ProjectID, email: ts.Email}, nil
}

// HTTPClient returns the authenticated client the Gemini streaming client
// issues requests with.
func (c *Client) HTTPClient() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

// ReloadToken re-reads the credential file at c.tokenPath and swaps in a
// fresh authenticated transport and token source, used by the config/auth
// file watcher when the credential file changes on disk (e.g. the upstream
// Gemini CLI refreshed it out-of-band).
func (c *Client) ReloadToken(ctx context.Context, cfg *config.Config) error {
	ts, err := LoadTokenFromFile(c.tokenPath)
	if err != nil {
		return err
	}
	httpClient, source, err := NewAuthenticatedClient(ctx, ts, cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.httpClient = httpClient
	c.source = source
	if ts.ProjectID != "" {
		c.projectID = ts.ProjectID
	}
	c.email = ts.Email
	c.mu.Unlock()
	return nil
}

// AccessToken returns the current bearer token, matching the AuthClient
// access_token() shape SPEC_FULL.md §3 describes. The underlying
// oauth2.TokenSource refreshes transparently when the cached token has
// expired; if InvalidateToken was called since the last successful
// request, this forces exactly one refresh round trip before returning.
func (c *Client) AccessToken(_ context.Context) (string, error) {
	c.mu.RLock()
	source := c.source
	c.mu.RUnlock()

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("auth: token refresh failed: %w", err)
	}
	return tok.AccessToken, nil
}

// InvalidateToken is a no-op for the default AuthClient: oauth2.TokenSource
// already refreshes once the cached token's expiry has passed, and Google's
// access tokens are short-lived enough that a 401 almost always means the
// expiry clock, not the token itself, is wrong. Exists so callers that
// receive a 401 can still signal "don't trust the cached token", matching
// the AuthClient interface shape SPEC_FULL.md §3 describes.
func (c *Client) InvalidateToken() {
	log.Debug("auth: token invalidated after upstream 401")
}

// ProjectID returns the Google Cloud project id this client resolved,
// populated by SetupUser.
func (c *Client) ProjectID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectID
}

// Email returns the account email associated with the loaded credential.
func (c *Client) Email() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email
}

type loadCodeAssistRequest struct {
	CloudaicompanionProject string   `json:"cloudaicompanionProject,omitempty"`
	Metadata                metadata `json:"metadata"`
}

type metadata struct {
	IdeType    string `json:"ideType"`
	Platform   string `json:"platform"`
	PluginType string `json:"pluginType"`
	Duet       bool   `json:"duetProject,omitempty"`
}

type loadCodeAssistResponse struct {
	CurrentTier             *tierInfo `json:"currentTier"`
	CloudaicompanionProject string    `json:"cloudaicompanionProject"`
}

type tierInfo struct {
	ID string `json:"id"`
}

type onboardUserRequest struct {
	TierID                  string   `json:"tierId"`
	CloudaicompanionProject string   `json:"cloudaicompanionProject"`
	Metadata                metadata `json:"metadata"`
}

type longRunningOperation struct {
	Done     bool            `json:"done"`
	Response json.RawMessage `json:"response"`
}

// SetupUser runs the same discovery sequence the teacher's SetupUser does:
// loadCodeAssist to find an existing onboarded project, falling back to
// onboardUser + polling the returned long-running operation until it
// reports done, matching spec.md §4.3's "discover or provision a project"
// step. explicitProjectID lets operators skip discovery entirely via
// cfg.Gemini.ProjectID.
func (c *Client) SetupUser(ctx context.Context, explicitProjectID string) error {
	if explicitProjectID != "" {
		c.mu.Lock()
		c.projectID = explicitProjectID
		c.mu.Unlock()
		return nil
	}

	meta := metadata{IdeType: "IDE_UNSPECIFIED", Platform: "PLATFORM_UNSPECIFIED", PluginType: "GEMINI"}

	loadResp, err := c.loadCodeAssist(ctx, meta)
	if err != nil {
		return fmt.Errorf("auth: loadCodeAssist failed: %w", err)
	}
	if loadResp.CloudaicompanionProject != "" {
		c.mu.Lock()
		c.projectID = loadResp.CloudaicompanionProject
		c.mu.Unlock()
		return nil
	}

	tier := "free-tier"
	if loadResp.CurrentTier != nil && loadResp.CurrentTier.ID != "" {
		tier = loadResp.CurrentTier.ID
	}

	projectID, err := c.onboardUser(ctx, tier, meta)
	if err != nil {
		if projects, listErr := c.GetProjectList(ctx); listErr == nil && len(projects) > 0 {
			return fmt.Errorf("auth: onboardUser failed: %w (visible projects: %s; set gemini.project-id to one of these)", err, projectNames(projects))
		}
		return fmt.Errorf("auth: onboardUser failed: %w", err)
	}
	c.mu.Lock()
	c.projectID = projectID
	c.mu.Unlock()
	return nil
}

func (c *Client) loadCodeAssist(ctx context.Context, meta metadata) (*loadCodeAssistResponse, error) {
	body, err := json.Marshal(loadCodeAssistRequest{Metadata: meta})
	if err != nil {
		return nil, err
	}
	respBody, err := c.post(ctx, "/v1internal:loadCodeAssist", body)
	if err != nil {
		return nil, err
	}
	var out loadCodeAssistResponse
	if err = json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// onboardUserMaxPolls and onboardUserPollInterval implement spec.md §4.4's
// literal polling bound: up to 30 attempts at 1s intervals, then fatal.
const (
	onboardUserMaxPolls     = 30
	onboardUserPollInterval = 1 * time.Second
)

func (c *Client) onboardUser(ctx context.Context, tier string, meta metadata) (string, error) {
	body, err := json.Marshal(onboardUserRequest{TierID: tier, Metadata: meta})
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < onboardUserMaxPolls; attempt++ {
		respBody, err := c.post(ctx, "/v1internal:onboardUser", body)
		if err != nil {
			return "", err
		}
		var op longRunningOperation
		if err = json.Unmarshal(respBody, &op); err != nil {
			return "", err
		}
		if op.Done {
			var resp struct {
				CloudaicompanionProject struct {
					ID string `json:"id"`
				} `json:"cloudaicompanionProject"`
			}
			if err = json.Unmarshal(op.Response, &resp); err != nil {
				return "", err
			}
			if resp.CloudaicompanionProject.ID == "" {
				return "", fmt.Errorf("onboardUser completed without a project id")
			}
			return resp.CloudaicompanionProject.ID, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(onboardUserPollInterval):
		}
	}
	return "", fmt.Errorf("onboardUser: timed out after %d polls without completing", onboardUserMaxPolls)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, codeAssistEndpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Goog-Api-Client", "gl-node/22.17.0")
	req.Header.Set("Client-Metadata", clientMetadataHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// UserAgent and the client metadata header match the teacher's
// GetUserAgent/getClientMetadataString so Code Assist sees a request shape
// identical to the upstream CLI it otherwise expects.
const (
	UserAgent            = "google-api-nodejs-client/9.15.1"
	clientMetadataHeader = "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI"
)
