// Command tokengen mints session cookies for local development. Tokens are
// signed with SESSION_SECRET, or the development default when unset.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/session"
	"gatekeeper/internal/session/token"
)

type tokenOutput struct {
	Token     string `json:"token"`
	Subject   string `json:"subject"`
	Role      string `json:"role"`
	Bare      bool   `json:"bare"`
	ExpiresIn string `json:"expires_in"`
	Cookie    string `json:"cookie"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defaults, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	subject := fs.String("subject", "", "Subject (user ID). Generated if empty.")
	role := fs.String("role", string(session.RoleAdmin), "Role: ADMIN, MANAGER or USER")
	ttl := fs.Duration("ttl", defaults.Session.TTL, "Token time-to-live")
	secret := fs.String("secret", defaults.Session.Secret, "Signing secret")
	issuer := fs.String("issuer", defaults.Session.Issuer, "Issuer claim")
	audience := fs.String("audience", defaults.Session.Audience, "Audience claim")
	bare := fs.Bool("bare", false, "Omit issuer and audience (legacy cookie format)")
	asJSON := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := session.Role(strings.ToUpper(*role))
	if _, ok := session.Capabilities[r]; !ok {
		return fmt.Errorf("unknown role %q", *role)
	}
	if *subject == "" {
		*subject = uuid.NewString()
	}

	codec, err := token.NewCodec(*secret, *issuer, *audience, *ttl)
	if err != nil {
		return err
	}
	encode := codec.Encode
	if *bare {
		encode = codec.EncodeBare
	}
	raw, err := encode(context.Background(), *subject, string(r))
	if err != nil {
		return err
	}

	out := tokenOutput{
		Token:     raw,
		Subject:   *subject,
		Role:      string(r),
		Bare:      *bare,
		ExpiresIn: ttl.Round(time.Second).String(),
		Cookie:    defaults.Session.Cookie + "=" + raw,
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Subject:    %s\n", out.Subject)
	fmt.Printf("Role:       %s\n", out.Role)
	fmt.Printf("Expires In: %s\n", out.ExpiresIn)
	fmt.Println()
	fmt.Println(out.Token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl --cookie %q http://localhost:8080/api/admin/inquiries\n", out.Cookie)
	return nil
}
