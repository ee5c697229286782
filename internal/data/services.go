package data

import (
	"context"
	"database/sql"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Service struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// ServiceInfo carries the status flag needed by token issuance and checks.
type ServiceInfo struct {
	ID     int
	Name   string
	Status bool
}

const serviceNameCacheSize = 512

type ServiceModel struct {
	DB DBTX

	// name -> id resolution cache. Mutating operations call flushNameCache
	// so a rename or delete is never served from here.
	nameCache *lru.Cache[string, int]
}

func NewServiceModel(db DBTX) *ServiceModel {
	cache, _ := lru.New[string, int](serviceNameCacheSize)
	return &ServiceModel{DB: db, nameCache: cache}
}

func (m *ServiceModel) flushNameCache() {
	if m.nameCache != nil {
		m.nameCache.Purge()
	}
}

func (m *ServiceModel) Create(ctx context.Context, name string, description *string) (*Service, error) {
	var s Service
	err := m.DB.QueryRowContext(ctx,
		`SELECT id, name, description FROM auth.create_service($1, $2)`, name, description).
		Scan(&s.ID, &s.Name, &s.Description)
	if err != nil {
		return nil, err
	}
	m.flushNameCache()
	return &s, nil
}

func (m *ServiceModel) List(ctx context.Context) ([]Service, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id, name, description FROM auth.list_services()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []Service{}
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (m *ServiceModel) Update(ctx context.Context, id int, name, description *string) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.update_service($1, $2, $3)`, id, name, description)
	if err == nil {
		m.flushNameCache()
	}
	return err
}

func (m *ServiceModel) Delete(ctx context.Context, id int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.delete_service($1)`, id)
	if err == nil {
		m.flushNameCache()
	}
	return err
}

// Info loads id, name and the active flag for token issuance and checks.
func (m *ServiceModel) Info(ctx context.Context, id int) (*ServiceInfo, error) {
	var info ServiceInfo
	err := m.DB.QueryRowContext(ctx,
		`SELECT id, name, status FROM auth.services WHERE id = $1`, id).
		Scan(&info.ID, &info.Name, &info.Status)
	if err == sql.ErrNoRows {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ResolveID maps a flexible identifier to a service id. Name lookups go
// through the LRU cache. createIfMissing only applies on admin assign paths.
func (m *ServiceModel) ResolveID(ctx context.Context, fid FlexibleID, createIfMissing bool) (int, error) {
	if id, ok := fid.Int(); ok {
		return id, nil
	}
	name, ok := fid.Str()
	if !ok || name == "" {
		return 0, ErrInvalidID
	}

	if m.nameCache != nil {
		if id, ok := m.nameCache.Get(name); ok {
			return id, nil
		}
	}

	var id int
	err := m.DB.QueryRowContext(ctx, `SELECT id FROM auth.services WHERE name = $1`, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows && createIfMissing:
		id, err = m.createByName(ctx, name)
		if err != nil {
			return 0, err
		}
	case err == sql.ErrNoRows:
		return 0, ErrServiceNotFound
	case err != nil:
		return 0, err
	}

	if m.nameCache != nil {
		m.nameCache.Add(name, id)
	}
	return id, nil
}

// createByName is the insert-or-select race pattern: an ON CONFLICT DO
// NOTHING insert returns no row when another request got there first, so
// fall back to a plain select.
func (m *ServiceModel) createByName(ctx context.Context, name string) (int, error) {
	var id int
	err := m.DB.QueryRowContext(ctx,
		`INSERT INTO auth.services (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	err = m.DB.QueryRowContext(ctx, `SELECT id FROM auth.services WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
