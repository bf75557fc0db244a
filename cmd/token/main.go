// Command token issues bearer tokens signed with the service's JWT_SECRET,
// for operators and for clients provisioned outside an identity provider.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"retail-backoffice/config"
	"retail-backoffice/internal/auth"
)

func main() {
	var (
		subject = flag.String("sub", "", "user ID carried in the sub claim")
		role    = flag.String("role", auth.RoleCustomer, "role claim: admin or customer")
		ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *subject == "" || len([]rune(*subject)) > auth.MaxSubjectLength {
		fmt.Fprintf(os.Stderr, "sub must be 1-%d characters\n", auth.MaxSubjectLength)
		os.Exit(2)
	}
	if *role != auth.RoleAdmin && *role != auth.RoleCustomer {
		fmt.Fprintln(os.Stderr, "role must be admin or customer")
		os.Exit(2)
	}
	if *ttl <= 0 {
		fmt.Fprintln(os.Stderr, "ttl must be positive")
		os.Exit(2)
	}

	cfg := config.Load()
	keys, err := auth.NewKeys(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load signing key: %v\n", err)
		os.Exit(1)
	}

	token, err := keys.GenerateToken(*subject, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
