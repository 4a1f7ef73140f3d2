// Command jwt-mint prints an HS256 bearer token whose subject is a user's
// primary key, for calling the viewer field against a server configured with
// server.auth.jwt_secret.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type mintOptions struct {
	secret   []byte
	issuer   string
	audience []string
	subject  string
	expires  time.Duration
}

func main() {
	secret := flag.String("secret", os.Getenv("RELAYLOADER_SERVER_AUTH_JWT_SECRET"), "HS256 signing secret")
	secretFile := flag.String("secret-file", "", "Read the signing secret from a file")
	issuer := flag.String("issuer", "", "JWT issuer (must match server.auth.jwt_issuer when set)")
	audience := flag.String("audience", "", "JWT audience (comma-separated, optional)")
	subject := flag.String("subject", "1", "User primary key")
	expires := flag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Parse()

	key := []byte(*secret)
	if *secretFile != "" {
		data, err := os.ReadFile(*secretFile)
		if err != nil {
			exitErr(fmt.Errorf("failed to read secret file: %w", err))
		}
		key = []byte(strings.TrimSpace(string(data)))
	}

	signed, err := mint(mintOptions{
		secret:   key,
		issuer:   *issuer,
		audience: splitList(*audience),
		subject:  *subject,
		expires:  *expires,
	}, time.Now())
	if err != nil {
		exitErr(err)
	}
	fmt.Println(signed)
}

func mint(opts mintOptions, now time.Time) (string, error) {
	if len(opts.secret) == 0 {
		return "", errors.New("a signing secret is required")
	}
	if opts.subject == "" {
		return "", errors.New("a subject is required")
	}
	if opts.expires <= 0 {
		return "", errors.New("expires must be positive")
	}

	claims := jwt.MapClaims{
		"sub": opts.subject,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(opts.expires).Unix(),
	}
	if opts.issuer != "" {
		claims["iss"] = opts.issuer
	}
	if len(opts.audience) > 0 {
		claims["aud"] = opts.audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(opts.secret)
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
