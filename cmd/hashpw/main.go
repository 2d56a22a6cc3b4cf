package main

import (
	"fmt"
	"log"
	"os"

	"github.com/vpastila/mineserv/internal/auth"
)

// Prints the bcrypt hash to feed into ADMIN_PASSWORD_HASH.
func main() {
	password := os.Getenv("MINESERV_PASSWORD")
	if password == "" {
		log.Fatal("MINESERV_PASSWORD must be set")
	}

	hash, err := auth.HashPassword(password, 12)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
