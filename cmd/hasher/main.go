package main

import (
	"fmt"
	"log"
	"os"

	"github.com/technosupport/ts-auth/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: hasher <password>")
	}
	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatalf("hash failed: %v", err)
	}
	fmt.Println(hash)
}
