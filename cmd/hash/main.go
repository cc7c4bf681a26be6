// Package main prints the bcrypt digest of an admin password. The registry stores
// only digests, so this is used when seeding or repairing admin records by hand
// without running the server.
//
//	hash [-cost 12] < password.txt
//	hash -verify '$2a$12$...' < password.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/orgspace/orgspace/internal/credential"
)

func main() {
	cost := flag.Int("cost", credential.DefaultCost, "bcrypt work factor")
	verify := flag.String("verify", "", "check the password on stdin against this digest instead of hashing")
	flag.Parse()

	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		fmt.Fprintln(os.Stderr, "read password from stdin:", err)
		os.Exit(1)
	}
	password = strings.TrimRight(password, "\r\n")

	hasher := credential.NewBcrypt(*cost)
	if *verify != "" {
		if !hasher.Verify(password, *verify) {
			fmt.Println("mismatch")
			os.Exit(1)
		}
		fmt.Println("match")
		return
	}

	digest, err := hasher.Hash(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(digest)
}
