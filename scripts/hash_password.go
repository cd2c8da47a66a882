//go:build ignore

// Prints a bcrypt hash for ADMIN_PASSWORD_HASH.
// Run with: go run scripts/hash_password.go -password yourpassword
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := flag.String("password", "", "Admin password")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	if *password == "" {
		fmt.Println("Usage: go run scripts/hash_password.go -password <password> [-cost 10]")
		os.Exit(1)
	}
	if len(*password) < 12 {
		fmt.Fprintln(os.Stderr, "warning: passwords shorter than 12 characters are easy to guess")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
	fmt.Println()
	fmt.Println("Set it with:")
	fmt.Printf("  ADMIN_PASSWORD_HASH='%s'\n", hash)
}
