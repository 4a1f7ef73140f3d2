package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relayloader/internal/middleware"
)

func TestMintVerifiesWithAuthMiddleware(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	signed, err := mint(mintOptions{
		secret:   []byte(secret),
		issuer:   "blog",
		audience: []string{"relayloader"},
		subject:  "42",
		expires:  time.Hour,
	}, time.Now())
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	auth, err := middleware.AuthMiddleware(context.Background(), middleware.AuthConfig{
		HMACSecret: secret,
		Issuer:     "blog",
		Audience:   "relayloader",
	})
	if err != nil {
		t.Fatalf("auth middleware: %v", err)
	}

	var subject string
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if viewer, ok := middleware.ViewerFromContext(r.Context()); ok {
			subject = viewer.Subject
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if subject != "42" {
		t.Fatalf("expected subject 42, got %q", subject)
	}
}

func TestMintRejectsIncompleteOptions(t *testing.T) {
	tests := []struct {
		name string
		opts mintOptions
	}{
		{name: "no secret", opts: mintOptions{subject: "1", expires: time.Hour}},
		{name: "no subject", opts: mintOptions{secret: []byte("s"), expires: time.Hour}},
		{name: "no lifetime", opts: mintOptions{secret: []byte("s"), subject: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mint(tt.opts, time.Now()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitList = %v", got)
	}
}
