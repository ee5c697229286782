package data

import (
	"context"
	"database/sql"
	"errors"
)

// Person is the public projection of auth.person. The password digest only
// travels on the credential lookup used by login.
type Person struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// PersonCredentials is the login projection: identity plus stored digest.
type PersonCredentials struct {
	ID             int
	Username       string
	Name           string
	PasswordDigest string
}

var (
	ErrInvalidPersonType   = errors.New("invalid person type")
	ErrInvalidDocumentType = errors.New("invalid document type")
)

// ValidPersonType checks the N/J discriminator.
func ValidPersonType(v string) bool { return v == "N" || v == "J" }

// ValidDocumentType checks the DNI/CE/RUC discriminator.
func ValidDocumentType(v string) bool { return v == "DNI" || v == "CE" || v == "RUC" }

type PersonModel struct {
	DB DBTX
}

// GetCredentials looks a person up by username for authentication. Soft
// deleted rows never authenticate.
func (m PersonModel) GetCredentials(ctx context.Context, username string) (*PersonCredentials, error) {
	query := `
		SELECT id, username, password_digest, name
		FROM auth.person
		WHERE username = $1 AND removed_at IS NULL`

	var p PersonCredentials
	err := m.DB.QueryRowContext(ctx, query, username).Scan(&p.ID, &p.Username, &p.PasswordDigest, &p.Name)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m PersonModel) Create(ctx context.Context, username, passwordDigest, name, personType, documentType, documentNumber string) (*Person, error) {
	query := `SELECT id, username, name FROM auth.create_person($1, $2, $3, $4, $5, $6)`

	var p Person
	err := m.DB.QueryRowContext(ctx, query, username, passwordDigest, name, personType, documentType, documentNumber).
		Scan(&p.ID, &p.Username, &p.Name)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m PersonModel) Get(ctx context.Context, id int) (*Person, error) {
	var p Person
	err := m.DB.QueryRowContext(ctx, `SELECT id, username, name FROM auth.get_person($1)`, id).
		Scan(&p.ID, &p.Username, &p.Name)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m PersonModel) List(ctx context.Context) ([]Person, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id, username, name FROM auth.list_people()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	people := []Person{}
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Username, &p.Name); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// Update passes nil for fields that should keep their value; the stored
// procedure treats NULL as "leave unchanged".
func (m PersonModel) Update(ctx context.Context, id int, username, passwordDigest, name *string) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.update_person($1, $2, $3, $4)`, id, username, passwordDigest, name)
	return err
}

// SoftDelete stamps removed_at; the row stays for audit but no identity
// lookup will return it again.
func (m PersonModel) SoftDelete(ctx context.Context, id int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.delete_person($1)`, id)
	return err
}

// ResolveID maps a flexible identifier to a person id: integers pass
// through, "person-<digits>" strips the prefix, anything else is a username
// lookup over live rows.
func (m PersonModel) ResolveID(ctx context.Context, fid FlexibleID) (int, error) {
	if id, ok := fid.Int(); ok {
		return id, nil
	}
	raw, ok := fid.Str()
	if !ok || raw == "" {
		return 0, ErrInvalidID
	}
	if id, ok := personDigits(raw); ok {
		return id, nil
	}

	var id int
	err := m.DB.QueryRowContext(ctx,
		`SELECT id FROM auth.person WHERE username = $1 AND removed_at IS NULL`, raw).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrPersonNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}
