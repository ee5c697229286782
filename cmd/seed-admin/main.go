package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/technosupport/ts-auth/internal/auth"
)

// Seeds a bootstrap admin person so a fresh install can log in. Idempotent:
// an existing username is left untouched.
func main() {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Fatal("DATABASE_URL must be set")
	}

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("ADMIN_PASSWORD must be set")
	}
	name := os.Getenv("ADMIN_NAME")
	if name == "" {
		name = "Administrator"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	digest, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Hash failed: %v", err)
	}

	res, err := db.Exec(`
		INSERT INTO auth.person (username, password_digest, name, person_type, document_type, document_number)
		VALUES ($1, $2, $3, 'N', 'DNI', '00000000')
		ON CONFLICT (username) DO NOTHING`, username, digest, name)
	if err != nil {
		log.Fatalf("Admin insert failed: %v", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("Admin %q already present, nothing to do", username)
		return
	}
	log.Printf("Admin %q seeded", username)
}
