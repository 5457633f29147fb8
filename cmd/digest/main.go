// Package main is a utility for computing the SHA-256/SHA-512 digest pair of
// a file, in the same form the registry records for stored artifacts. It is
// used when manually seeding artifact rows or verifying a downloaded file
// against the catalog without running the full server.
package main

import (
	"fmt"
	"os"

	"github.com/corevault-registry/corevault-registry/pkg/checksum"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file>\n", os.Args[0])
		os.Exit(2)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	pair, size, err := checksum.Compute(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("size:   %d\n", size)
	fmt.Printf("sha256: %s\n", pair.SHA256)
	fmt.Printf("sha512: %s\n", pair.SHA512)
}
