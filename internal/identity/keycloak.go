package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/domain"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// KeycloakGateway implements Gateway against a Keycloak realm.
type KeycloakGateway struct {
	cfg      config.IdentityConfig
	logger   *zap.Logger
	oauth    *oauth2.Config
	public   *resty.Client
	admin    *resty.Client
	httpBase *http.Client

	keyMu sync.Mutex
	key   *rsa.PublicKey
}

type realmInfo struct {
	PublicKey string `json:"public_key"`
}

type keycloakCredential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type keycloakUser struct {
	Username      string               `json:"username"`
	Email         string               `json:"email"`
	FirstName     string               `json:"firstName,omitempty"`
	LastName      string               `json:"lastName,omitempty"`
	Enabled       bool                 `json:"enabled"`
	EmailVerified bool                 `json:"emailVerified"`
	Credentials   []keycloakCredential `json:"credentials"`
	Attributes    map[string][]string  `json:"attributes,omitempty"`
}

type keycloakUserUpdate struct {
	Username    string               `json:"username,omitempty"`
	Email       string               `json:"email,omitempty"`
	FirstName   string               `json:"firstName,omitempty"`
	LastName    string               `json:"lastName,omitempty"`
	Credentials []keycloakCredential `json:"credentials,omitempty"`
}

type keycloakClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// NewKeycloakGateway builds the gateway. The admin client obtains its own
// client-credentials token and refreshes it as needed.
func NewKeycloakGateway(cfg config.IdentityConfig, logger *zap.Logger) *KeycloakGateway {
	base := strings.TrimRight(cfg.ServerURL, "/")
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", base, cfg.Realm)
	httpBase := &http.Client{Timeout: cfg.Timeout()}

	adminCfg := clientcredentials.Config{
		ClientID:     firstNonEmpty(cfg.AdminClientID, cfg.ClientID),
		ClientSecret: firstNonEmpty(cfg.AdminClientSecret, cfg.ClientSecret),
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	adminHTTP := adminCfg.Client(context.WithValue(context.Background(), oauth2.HTTPClient, httpBase))
	adminHTTP.Timeout = cfg.Timeout()

	return &KeycloakGateway{
		cfg:    cfg,
		logger: logger,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid"},
		},
		public:   resty.NewWithClient(httpBase).SetBaseURL(base),
		admin:    resty.NewWithClient(adminHTTP).SetBaseURL(base),
		httpBase: httpBase,
	}
}

func (k *KeycloakGateway) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, k.httpBase)
}

// Authenticate performs the resource owner password grant.
func (k *KeycloakGateway) Authenticate(ctx context.Context, username, password string) (domain.Tokens, error) {
	tok, err := k.oauth.PasswordCredentialsToken(k.oauthContext(ctx), username, password)
	if err != nil {
		return domain.Tokens{}, k.grantError("password grant", err)
	}
	return tokensFrom(tok), nil
}

// Refresh exchanges a refresh token for a new pair.
func (k *KeycloakGateway) Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error) {
	if refreshToken == "" {
		return domain.Tokens{}, ErrInvalidCredentials
	}
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := k.oauth.TokenSource(k.oauthContext(ctx), expired).Token()
	if err != nil {
		return domain.Tokens{}, k.grantError("refresh grant", err)
	}
	return tokensFrom(tok), nil
}

func (k *KeycloakGateway) grantError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		switch retrieveErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return ErrInvalidCredentials
		}
	}
	k.logger.Error("keycloak "+op+" failed", zap.Error(err))
	return apperrors.NewUpstreamError(err, true)
}

// VerifyToken validates an RS256 access token against the realm key.
func (k *KeycloakGateway) VerifyToken(ctx context.Context, token string) (domain.VerifiedIdentity, error) {
	key, err := k.realmKey(ctx)
	if err != nil {
		return domain.VerifiedIdentity{}, err
	}

	claims := &keycloakClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(k.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return domain.VerifiedIdentity{}, ErrInvalidToken
	}
	return domain.VerifiedIdentity{
		ExternalID: claims.Subject,
		SessionID:  claims.SessionID,
		Email:      claims.Email,
	}, nil
}

func (k *KeycloakGateway) realmKey(ctx context.Context) (*rsa.PublicKey, error) {
	k.keyMu.Lock()
	defer k.keyMu.Unlock()
	if k.key != nil {
		return k.key, nil
	}

	var info realmInfo
	resp, err := k.public.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/realms/" + k.cfg.Realm)
	if err != nil {
		k.logger.Error("fetch realm key", zap.Error(err))
		return nil, apperrors.NewUpstreamError(err, true)
	}
	if resp.IsError() || info.PublicKey == "" {
		err := fmt.Errorf("realm key: status %d", resp.StatusCode())
		k.logger.Error("fetch realm key", zap.Error(err))
		return nil, apperrors.NewUpstreamError(err, resp.StatusCode() >= http.StatusInternalServerError)
	}

	pem := "-----BEGIN PUBLIC KEY-----\n" + info.PublicKey + "\n-----END PUBLIC KEY-----"
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, apperrors.NewUpstreamError(fmt.Errorf("parse realm key: %w", err), false)
	}
	k.key = key
	return key, nil
}

// CreateIdentity provisions a user and returns the id taken from the Location header.
func (k *KeycloakGateway) CreateIdentity(ctx context.Context, profile domain.IdentityProfile) (string, error) {
	body := keycloakUser{
		Username:      profile.Email,
		Email:         profile.Email,
		FirstName:     profile.FirstName,
		LastName:      profile.LastName,
		Enabled:       true,
		EmailVerified: true,
		Credentials:   []keycloakCredential{{Type: "password", Value: profile.Password}},
		Attributes:    map[string][]string{"role": {string(profile.Role)}},
	}

	resp, err := k.admin.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/admin/realms/%s/users", k.cfg.Realm))
	if err != nil {
		k.logger.Error("keycloak create user", zap.Error(err))
		return "", apperrors.NewUpstreamError(err, true)
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
	case http.StatusConflict:
		return "", ErrIdentityExists
	default:
		err := fmt.Errorf("create user: status %d", resp.StatusCode())
		k.logger.Error("keycloak create user", zap.Error(err), zap.ByteString("body", resp.Body()))
		return "", apperrors.NewUpstreamError(err, resp.StatusCode() >= http.StatusInternalServerError)
	}

	location := resp.Header().Get("Location")
	id := path.Base(location)
	if location == "" || id == "." || id == "/" {
		return "", apperrors.NewUpstreamError(errors.New("create user: missing Location header"), false)
	}
	return id, nil
}

// UpdateIdentity rewrites the username and email (kept equal, as at creation)
// and the names of an existing user.
func (k *KeycloakGateway) UpdateIdentity(ctx context.Context, externalID string, profile domain.IdentityProfile) error {
	body := keycloakUserUpdate{
		Username:  profile.Email,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	}
	if profile.Password != "" {
		body.Credentials = []keycloakCredential{{Type: "password", Value: profile.Password}}
	}

	resp, err := k.admin.R().
		SetContext(ctx).
		SetBody(body).
		Put(fmt.Sprintf("/admin/realms/%s/users/%s", k.cfg.Realm, externalID))
	if err != nil {
		k.logger.Error("keycloak update user", zap.Error(err))
		return apperrors.NewUpstreamError(err, true)
	}

	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrIdentityNotFound
	case http.StatusConflict:
		return ErrIdentityExists
	}
	err = fmt.Errorf("update user: status %d", resp.StatusCode())
	k.logger.Error("keycloak update user", zap.Error(err), zap.ByteString("body", resp.Body()))
	return apperrors.NewUpstreamError(err, resp.StatusCode() >= http.StatusInternalServerError)
}

// DeleteIdentity removes a user. A missing user is not an error.
func (k *KeycloakGateway) DeleteIdentity(ctx context.Context, externalID string) error {
	resp, err := k.admin.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/admin/realms/%s/users/%s", k.cfg.Realm, externalID))
	if err != nil {
		return apperrors.NewUpstreamError(err, true)
	}
	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	}
	return apperrors.NewUpstreamError(fmt.Errorf("delete user: status %d", resp.StatusCode()), resp.StatusCode() >= http.StatusInternalServerError)
}

func tokensFrom(tok *oauth2.Token) domain.Tokens {
	out := domain.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if secs, ok := tok.Extra("refresh_expires_in").(float64); ok && secs > 0 {
		out.RefreshExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
