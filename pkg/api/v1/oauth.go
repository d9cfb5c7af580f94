// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
)

// oobRedirectURI is the out-of-band redirect marker; the code is displayed
// instead of redirected.
const oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// OAuthRoutes defines the /oauth endpoints.
type OAuthRoutes struct {
	oauth *oauth.Service
}

// OAuthRouter creates a new OAuthRoutes instance.
func OAuthRouter(deps Deps) http.Handler {
	routes := OAuthRoutes{oauth: deps.OAuth}

	r := chi.NewRouter()
	r.Get("/authorize", apierrors.ErrorHandler(routes.authorizeForm))
	r.Post("/authorize", apierrors.ErrorHandler(routes.authorize))
	r.Post("/token", apierrors.ErrorHandler(routes.token))
	r.Post("/revoke", apierrors.ErrorHandler(routes.revoke))
	return r
}

// authorizeForm renders the login page. The gateway has no accounts of its
// own; the form collects the Bluesky handle and an app password.
func (s *OAuthRoutes) authorizeForm(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	app, err := s.oauth.App(r.Context(), q.Get("client_id"))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, authorizePage,
		html.EscapeString(app.Name),
		html.EscapeString(q.Get("client_id")),
		html.EscapeString(q.Get("redirect_uri")),
		html.EscapeString(q.Get("scope")),
	)
	return nil
}

func (s *OAuthRoutes) authorize(w http.ResponseWriter, r *http.Request) error {
	values, err := requestValues(r)
	if err != nil {
		return err
	}

	redirectURI := values.Get("redirect_uri")
	code, err := s.oauth.Authorize(r.Context(),
		values.Get("client_id"), redirectURI, values.Get("scope"),
		values.Get("username"), values.Get("password"))
	if err != nil {
		return err
	}

	if redirectURI == oobRedirectURI {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, oobPage, html.EscapeString(code))
		return nil
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		return errors.NewValidation("redirect_uri", "Malformed redirect URI")
	}
	q := target.Query()
	q.Set("code", code)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
	return nil
}

func (s *OAuthRoutes) token(w http.ResponseWriter, r *http.Request) error {
	values, err := requestValues(r)
	if err != nil {
		return err
	}

	var token *oauth.Token
	switch grant := values.Get("grant_type"); grant {
	case "authorization_code":
		token, err = s.oauth.ExchangeCode(r.Context(),
			values.Get("client_id"), values.Get("client_secret"),
			values.Get("redirect_uri"), values.Get("code"))
	case "password":
		token, err = s.oauth.PasswordGrant(r.Context(),
			values.Get("client_id"), values.Get("client_secret"), values.Get("scope"),
			values.Get("username"), values.Get("password"))
	default:
		return errors.NewInvalidGrant(fmt.Sprintf("Unsupported grant_type %q", grant))
	}
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, mastodon.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		Scope:       strings.Join(token.Scopes, " "),
		CreatedAt:   token.CreatedAt.Unix(),
	})
	return nil
}

func (s *OAuthRoutes) revoke(w http.ResponseWriter, r *http.Request) error {
	values, err := requestValues(r)
	if err != nil {
		return err
	}
	if err := s.oauth.Revoke(r.Context(), values.Get("token")); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

const authorizePage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign in with Bluesky</title></head>
<body>
<h1>Authorize %s</h1>
<p>Sign in with your Bluesky handle and an app password.</p>
<form method="post" action="/oauth/authorize">
<input type="hidden" name="client_id" value="%s">
<input type="hidden" name="redirect_uri" value="%s">
<input type="hidden" name="scope" value="%s">
<label>Handle <input type="text" name="username" placeholder="alice.bsky.social"></label><br>
<label>App password <input type="password" name="password"></label><br>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`

const oobPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorization code</title></head>
<body><p>Your authorization code is:</p><code>%s</code></body>
</html>
`
