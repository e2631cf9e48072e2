// Command token prints a bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"regdesk/internal/config"
	"regdesk/internal/middleware"
	"time"
)

func main() {
	user := flag.String("user", "", "user id to put in the token subject")
	staff := flag.Bool("staff", false, "grant the staff claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := middleware.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *user, *staff, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
