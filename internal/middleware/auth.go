package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"relayloader/internal/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// AuthConfig selects how bearer tokens are verified. An OIDC issuer wins over
// a shared secret; with neither, every request is anonymous.
type AuthConfig struct {
	// OIDCIssuerURL enables discovery and JWKS verification.
	OIDCIssuerURL string
	// OIDCCAFile trusts an extra CA when fetching discovery documents.
	OIDCCAFile    string
	SkipTLSVerify bool

	// HMACSecret verifies HS256 tokens.
	HMACSecret string
	// Issuer, when set, must match the iss claim of HS256 tokens.
	Issuer string

	// Audience must appear in the aud claim.
	Audience  string
	ClockSkew time.Duration
}

// Viewer is the authenticated caller.
type Viewer struct {
	Subject string
	Issuer  string
	Claims  map[string]interface{}
}

type viewerContextKey struct{}

// ViewerFromContext returns the viewer stored by AuthMiddleware.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerContextKey{}).(Viewer)
	return v, ok
}

// WithViewer stores v in ctx.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, v)
}

type tokenVerifier interface {
	verify(ctx context.Context, raw string) (map[string]interface{}, error)
}

type hmacVerifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

func newHMACVerifier(cfg AuthConfig) *hmacVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &hmacVerifier{secret: []byte(cfg.HMACSecret), opts: opts}
}

func (v *hmacVerifier) verify(_ context.Context, raw string) (map[string]interface{}, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

func (v *oidcVerifier) verify(ctx context.Context, raw string) (map[string]interface{}, error) {
	ctx = oidc.ClientContext(ctx, v.client)
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	claims := map[string]interface{}{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return claims, nil
}

func newOIDCHTTPClient(cfg AuthConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in for local issuers
	}
	if cfg.OIDCCAFile != "" {
		pem, err := os.ReadFile(cfg.OIDCCAFile)
		if err != nil {
			return nil, fmt.Errorf("read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("oidc CA file %q holds no certificates", cfg.OIDCCAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   10 * time.Second,
	}, nil
}

func newOIDCVerifier(ctx context.Context, cfg AuthConfig) (*oidcVerifier, error) {
	issuer, err := url.Parse(cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuer.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if cfg.Audience == "" {
		return nil, errors.New("oidc auth requires an audience")
	}
	client, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := oidc.NewProvider(context.WithValue(ctx, oauth2.HTTPClient, client), cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	return &oidcVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.Audience}),
		client:   client,
	}, nil
}

// AuthMiddleware verifies bearer tokens and stores the Viewer. Requests
// without a token pass through anonymous; a token that fails verification is
// rejected with 401.
func AuthMiddleware(ctx context.Context, cfg AuthConfig) (func(http.Handler) http.Handler, error) {
	var verifier tokenVerifier
	switch {
	case cfg.OIDCIssuerURL != "":
		v, err := newOIDCVerifier(ctx, cfg)
		if err != nil {
			return nil, err
		}
		verifier = v
	case cfg.HMACSecret != "":
		verifier = newHMACVerifier(cfg)
	default:
		return func(next http.Handler) http.Handler { return next }, nil
	}
	issuer := cfg.OIDCIssuerURL
	if issuer == "" {
		issuer = cfg.Issuer
	}
	return authHandler(verifier, issuer), nil
}

func authHandler(verifier tokenVerifier, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := verifier.verify(r.Context(), raw)
			if err != nil {
				logging.FromContext(r.Context()).Warn("bearer token rejected",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
				)
				writeUnauthorized(w, "invalid token")
				return
			}
			subject, _ := claims["sub"].(string)
			if subject == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}

			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.Bool("auth.authenticated", true),
				)
			}
			ctx := WithViewer(r.Context(), Viewer{Subject: subject, Issuer: issuer, Claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, message)
}
