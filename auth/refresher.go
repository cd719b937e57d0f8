package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
	"golang.org/x/oauth2"
)

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = time.Hour

// OAuth2Refresher exchanges a refresh token at the provider's token URL. The
// client credentials travel in the form body.
type OAuth2Refresher struct {
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewOAuth2Refresher(client *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{HTTPClient: client}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, req core.RefreshRequest) (core.RefreshedToken, error) {
	meta := map[string]any{"provider_id": req.ProviderID, "tenant_id": req.TenantID}
	if strings.TrimSpace(req.TokenURL) == "" || strings.TrimSpace(req.RefreshToken) == "" {
		return core.RefreshedToken{}, core.BadInputError("auth: token url and refresh token are required", meta)
	}
	if r != nil && r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	conf := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  req.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	now := r.now()
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			meta["status_code"] = retrieveErr.Response.StatusCode
		}
		return core.RefreshedToken{}, core.WrapError(err, goerrors.CategoryOperation,
			"auth: token refresh failed", core.ErrorCredentialRefreshFailed, meta)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return core.RefreshedToken{}, core.NewError("auth: token endpoint returned no access token",
			goerrors.CategoryOperation, core.ErrorCredentialRefreshFailed, meta)
	}

	expiresIn := time.Duration(token.ExpiresIn) * time.Second
	expiresAt := now.Add(expiresIn)
	switch {
	case expiresIn > 0:
	case !token.Expiry.IsZero():
		expiresIn = token.Expiry.Sub(now)
		expiresAt = token.Expiry.UTC()
	default:
		expiresIn = DefaultTokenLifetime
		expiresAt = now.Add(DefaultTokenLifetime)
	}
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = req.RefreshToken
	}
	return core.RefreshedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		ExpiresAt:    expiresAt,
	}, nil
}

func (r *OAuth2Refresher) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.TokenRefresher = (*OAuth2Refresher)(nil)
