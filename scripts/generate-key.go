// Package main is a development utility that prints a fresh ENCRYPTION_KEY and
// a personal access token for a local database. The token is printed raw
// together with its sha256 digest and a ready-to-run SQL INSERT so a developer
// can call the API without going through the login flow. Do not use generated
// tokens in production; sign in through /api/v1/auth/login instead.
//
//	go run ./scripts/generate-key.go [email]
package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/crypto"
)

func main() {
	email := "admin@dev.local"
	if len(os.Args) > 1 {
		email = os.Args[1]
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	raw, digest, err := auth.IssueToken()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Encryption Key")
	fmt.Println("==========================================================")
	fmt.Printf("\nENCRYPTION_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
	fmt.Println("\n==========================================================")
	fmt.Println("API Token")
	fmt.Println("==========================================================")
	fmt.Printf("\nToken: %s\n", raw)
	fmt.Printf("\nDigest: %s\n", digest)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO api_tokens (user_id, name, token, expires_at, created_at, updated_at)
SELECT id, 'dev-token', '%s', NOW() + INTERVAL '30 days', NOW(), NOW()
FROM users WHERE email = '%s';
`, digest, email)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", raw)
	fmt.Println("==========================================================")
}
