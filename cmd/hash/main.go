// Package main prints a bcrypt hash for a user password. Users store only
// the hash, so this is used when seeding or repairing user rows by hand
// without running the server.
//
//	go run ./cmd/hash <password> [cost]
package main

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password> [cost]\n", os.Args[0])
		os.Exit(2)
	}

	cost := bcrypt.DefaultCost
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid cost %q: %v\n", os.Args[2], err)
			os.Exit(2)
		}
		cost = n
	}

	hash, err := auth.HashPassword(os.Args[1], cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
