// Command token mints a management API access token from the JWT_* environment.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"voice-scheduler/internal/auth"
	"voice-scheduler/internal/config"
	"voice-scheduler/internal/rbac"
)

func main() {
	user := flag.String("user", "", "user id to embed in the token")
	role := flag.String("role", rbac.RoleOperator, "role: admin, operator or viewer")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_ACCESS_TTL or 15m)")
	flag.Parse()

	_ = godotenv.Load()

	if strings.TrimSpace(*user) == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	if !rbac.Known(*role) {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg := config.AuthConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
	}
	if v := strings.TrimSpace(os.Getenv("JWT_ACCESS_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JWT_ACCESS_TTL: %v\n", err)
			os.Exit(2)
		}
		cfg.AccessTokenTTL = d
	}

	m, err := auth.NewManager(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tok, err := m.IssueAccess(time.Now(), *user, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
