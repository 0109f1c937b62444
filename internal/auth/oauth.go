package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/valerka1292/gemini-cli-proxy/internal/config"
	"github.com/valerka1292/gemini-cli-proxy/internal/util"
)

// OAuth client identity the Gemini Code Assist CLI registers under. Carried
// over verbatim from the teacher's internal/auth/auth.go: these are the
// public client credentials the upstream CLI itself ships, not a secret
// belonging to this proxy.
const (
	oauthClientID     = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	oauthClientSecret = "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"
)

var oauthScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       oauthScopes,
	}
}

// NewAuthenticatedClient builds an http.Client whose transport carries an
// auto-refreshing OAuth2 token derived from ts.Token, proxied the same way
// every other outbound client in this proxy is (internal/util.SetProxy).
// Unlike the teacher's GetAuthenticatedClient, this never falls back to an
// interactive browser flow: a missing or unparsable token is a
// configuration error the operator must fix out of band, since this proxy
// runs unattended.
func NewAuthenticatedClient(ctx context.Context, ts *TokenStorage, cfg *config.Config) (*http.Client, oauth2.TokenSource, error) {
	if ts == nil || ts.Token == nil {
		return nil, nil, fmt.Errorf("auth: credential file has no token; re-authenticate with the upstream Gemini CLI and point auth_dir at its credentials")
	}

	raw, err := json.Marshal(ts.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: failed to marshal stored token: %w", err)
	}
	var tok oauth2.Token
	if err = json.Unmarshal(raw, &tok); err != nil {
		return nil, nil, fmt.Errorf("auth: failed to parse stored token: %w", err)
	}

	base := util.SetProxy(cfg, &http.Client{})
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	conf := oauthConfig()
	source := conf.TokenSource(ctx, &tok)
	return oauth2.NewClient(ctx, source), source, nil
}
