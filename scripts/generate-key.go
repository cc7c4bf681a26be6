// Package main is a development utility that prints a fresh archive encryption key and JWT
// signing secret as ready-to-export environment variables. Generated values are random on
// every run; store production values in a secret manager, not in shell history.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/orgspace/orgspace/internal/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}
	// Round-trip through the same parser the server uses.
	if _, err := crypto.ParseKey(hex.EncodeToString(key)); err != nil {
		log.Fatal(err)
	}

	secret := make([]byte, 48)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Development Secrets")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport ORGSPACE_ARCHIVE_ENCRYPTION_KEY=%s\n", hex.EncodeToString(key))
	fmt.Printf("export ORGSPACE_AUTH_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
	fmt.Println("\n==========================================================")
}
