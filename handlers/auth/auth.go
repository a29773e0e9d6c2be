package auth

import (
	"compass/config"
	"compass/core"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	stateCookie = "oauth_state"
	// TokenCookie carries the session token for browser clients.
	TokenCookie = "token"
	tokenTTL    = 7 * 24 * time.Hour
)

// AppClaims represents the custom claims for the JWT.
type AppClaims struct {
	jwt.RegisteredClaims
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
}

// OIDCClaims represents the claims from OIDC token
type OIDCClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Sub               string `json:"sub"`
}

// Auth issues and verifies session tokens and runs the OAuth login flow
// of whichever provider is configured.
type Auth struct {
	secret      []byte
	frontendURL string

	oauth         *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	githubUserURL string

	login    http.HandlerFunc
	callback http.HandlerFunc
}

// InitAuth picks OIDC when an issuer is configured, otherwise GitHub, and
// falls back to handlers that report the missing configuration.
func InitAuth(ctx context.Context, cfg config.AuthConfig) *Auth {
	a := &Auth{
		secret:        []byte(cfg.JWTSecret),
		frontendURL:   cfg.FrontendURL,
		githubUserURL: "https://api.github.com/user",
	}
	if a.frontendURL == "" {
		a.frontendURL = "/"
	}

	oidcConfigured := cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != ""
	githubConfigured := cfg.GitHubClientID != "" && cfg.GitHubClientSecret != ""

	switch {
	case oidcConfigured && a.initOIDC(ctx, cfg):
		logrus.Info("Initializing OIDC authentication provider.")
		a.login = a.handleOAuthLogin
		a.callback = a.handleOIDCCallback
	case githubConfigured:
		logrus.Info("Initializing GitHub authentication provider.")
		a.oauth = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
		a.login = a.handleOAuthLogin
		a.callback = a.handleGitHubCallback
	default:
		logrus.Warn("No authentication provider configured.")
		notConfigured := func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		}
		a.login = notConfigured
		a.callback = notConfigured
	}

	if len(a.secret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}
	return a
}

func (a *Auth) initOIDC(ctx context.Context, cfg config.AuthConfig) bool {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		logrus.WithError(err).Error("Failed to create OIDC provider")
		return false
	}
	a.oauth = &oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	return true
}

func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	a.login(w, r)
}

func (a *Auth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	a.callback(w, r)
}

func (a *Auth) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "Failed to generate login state", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusTemporaryRedirect)
}

// exchange checks the state cookie and trades the code for a token.
func (a *Auth) exchange(r *http.Request) (*oauth2.Token, error) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.FormValue("state") {
		return nil, errors.New("oauth state mismatch")
	}
	code := r.FormValue("code")
	if code == "" {
		return nil, errors.New("no code in callback")
	}
	return a.oauth.Exchange(r.Context(), code)
}

func (a *Auth) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	token, err := a.exchange(r)
	if err != nil {
		a.fail(w, r, "failed to exchange token", err)
		return
	}

	client := a.oauth.Client(r.Context(), token)
	resp, err := client.Get(a.githubUserURL)
	if err != nil {
		a.fail(w, r, "failed to get user from github", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		a.fail(w, r, "failed to get user from github", fmt.Errorf("status %d", resp.StatusCode))
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.fail(w, r, "failed to read github response body", err)
		return
	}

	var githubUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil {
		a.fail(w, r, "failed to unmarshal github user", err)
		return
	}

	a.finish(w, r, &core.User{
		Subject:   fmt.Sprintf("github:%d", githubUser.ID),
		Login:     githubUser.Login,
		Email:     githubUser.Email,
		AvatarURL: githubUser.AvatarURL,
		Name:      githubUser.Name,
	})
}

func (a *Auth) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	token, err := a.exchange(r)
	if err != nil {
		a.fail(w, r, "failed to exchange token", err)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		a.fail(w, r, "no id_token in token response", nil)
		return
	}
	idToken, err := a.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		a.fail(w, r, "failed to verify ID token", err)
		return
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		a.fail(w, r, "failed to extract claims from ID token", err)
		return
	}

	user := &core.User{
		Subject:   claims.Sub,
		Login:     claims.PreferredUsername,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
		Name:      claims.Name,
	}
	if user.Login == "" && user.Email != "" {
		user.Login = user.Email
	}
	a.finish(w, r, user)
}

func (a *Auth) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	entry := logrus.WithField("event", "oauth_callback")
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
	http.Redirect(w, r, a.frontendURL, http.StatusTemporaryRedirect)
}

// finish issues the session token as a cookie and hands it to the
// frontend in the redirect.
func (a *Auth) finish(w http.ResponseWriter, r *http.Request, user *core.User) {
	jwtToken, err := a.CreateJWT(user)
	if err != nil {
		a.fail(w, r, "failed to create JWT", err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    jwtToken,
		Path:     "/",
		Expires:  time.Now().Add(tokenTTL),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})

	target, err := url.Parse(a.frontendURL)
	if err != nil {
		a.fail(w, r, "invalid frontend url", err)
		return
	}
	q := target.Query()
	q.Set("token", jwtToken)
	target.RawQuery = q.Encode()
	logrus.WithField("user_id", user.Subject).Info("User logged in")
	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

func (a *Auth) CreateJWT(user *core.User) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Login:     user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Name:      user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ParseJWT(tokenString string) (*AppClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
