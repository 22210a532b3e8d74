// Package main mints HS256 access tokens for local development.
//
//	go run ./cmd/devtoken -tenant t1 -user u1 -perm notifications:send
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/identity"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	user := fs.String("user", "", "user id (required)")
	name := fs.String("name", "", "display name")
	perms := fs.String("perm", "", "comma-separated permissions")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	secret := fs.String("secret", os.Getenv("SECURITY_JWT_SECRET"), "HS256 signing secret (default $SECURITY_JWT_SECRET)")
	issuer := fs.String("issuer", os.Getenv("SECURITY_JWT_ISSUER"), "issuer claim (default $SECURITY_JWT_ISSUER)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenant == "" || *user == "" {
		return fmt.Errorf("-tenant and -user are required")
	}
	if *secret == "" {
		return fmt.Errorf("no signing secret: set -secret or SECURITY_JWT_SECRET")
	}

	claims := identity.Claims{"tenant_id": *tenant, "sub": *user}
	if *name != "" {
		claims["name"] = *name
	}
	if *perms != "" {
		var list []string
		for _, p := range strings.Split(*perms, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		claims["permissions"] = list
	}

	token, expires, err := middleware.GenerateToken(middleware.JWTConfig{
		SigningKey: []byte(*secret),
		Issuer:     *issuer,
		ExpiresIn:  *ttl,
	}, claims)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
