// Command devtoken mints a bearer token for local testing. Production tokens come from
// the identity provider in front of the API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"checkin/internal/auth"
	"checkin/internal/config"
)

func main() {
	cfg := config.Load()

	subject := flag.String("sub", "", "user id (uuid) to put in the token")
	role := flag.String("role", "STUDENT", "STUDENT or ADMIN")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime")
	flag.Parse()

	if *subject == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.IsProd() {
		log.Fatalf("devtoken refuses to run with APP_ENV=%s", cfg.Env)
	}

	tok, err := auth.Issue(*subject, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(tok.AccessToken)
}
