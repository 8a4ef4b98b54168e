package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUnknownDevice means the token was never registered.
	ErrUnknownDevice = errors.New("device not registered")
	// ErrAccessRevoked means the device is registered but blocked.
	ErrAccessRevoked = errors.New("device access revoked")
)

// Registry is the SQLite-backed device allowlist the server consults.
type Registry struct {
	db *sql.DB
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS authenticated_systems (
	device_token TEXT PRIMARY KEY,
	device_name  TEXT NOT NULL,
	user_access  INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL,
	last_login   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_systems_name ON authenticated_systems (device_name);
`

// OpenRegistry opens (and if needed creates) the registry database at path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Register enrolls a device and returns its token. Re-registering a known
// device name just refreshes its last-login time and returns the existing
// token, so reinstalling on the same machine never creates duplicates.
func (r *Registry) Register(ctx context.Context, deviceName, deviceToken string) (string, error) {
	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT device_token FROM authenticated_systems WHERE device_name = ?`,
		deviceName).Scan(&existing)
	switch {
	case err == nil:
		if _, err := r.db.ExecContext(ctx,
			`UPDATE authenticated_systems SET last_login = ? WHERE device_token = ?`,
			time.Now().UTC(), existing); err != nil {
			return "", fmt.Errorf("refreshing device: %w", err)
		}
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO authenticated_systems (device_token, device_name, user_access, created_at, last_login)
			 VALUES (?, ?, 1, ?, ?)`,
			deviceToken, deviceName, now, now); err != nil {
			return "", fmt.Errorf("registering device: %w", err)
		}
		return deviceToken, nil
	default:
		return "", fmt.Errorf("looking up device: %w", err)
	}
}

// Verify checks that the token is enrolled and not revoked, and touches its
// last-login time.
func (r *Registry) Verify(ctx context.Context, deviceToken string) error {
	var access bool
	err := r.db.QueryRowContext(ctx,
		`SELECT user_access FROM authenticated_systems WHERE device_token = ?`,
		deviceToken).Scan(&access)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrUnknownDevice
	case err != nil:
		return fmt.Errorf("looking up device: %w", err)
	}
	if !access {
		return ErrAccessRevoked
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE authenticated_systems SET last_login = ? WHERE device_token = ?`,
		time.Now().UTC(), deviceToken); err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return nil
}

// SetAccess flips a device's allow bit without deleting its record.
func (r *Registry) SetAccess(ctx context.Context, deviceToken string, allowed bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE authenticated_systems SET user_access = ? WHERE device_token = ?`,
		allowed, deviceToken)
	if err != nil {
		return fmt.Errorf("updating access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownDevice
	}
	return nil
}

// Device is one registry row.
type Device struct {
	Token     string
	Name      string
	Access    bool
	CreatedAt time.Time
	LastLogin time.Time
}

// Devices lists every enrolled device, most recently active first.
func (r *Registry) Devices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_token, device_name, user_access, created_at, last_login
		 FROM authenticated_systems ORDER BY last_login DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.Token, &d.Name, &d.Access, &d.CreatedAt, &d.LastLogin); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
