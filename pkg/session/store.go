package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"

	"wabridge/pkg/logger"
)

// Store persists the linked-device credentials in a SQLite file under the
// auth directory. The table layout belongs to whatsmeow's sqlstore.
type Store struct {
	path      string
	db        *sql.DB
	container *sqlstore.Container
	mu        sync.Mutex
	saves     int
}

// Open creates the auth directory if needed, opens the database and applies
// the sqlstore schema upgrades.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite3", logger.WhatsmeowLogger("sqlstore"))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upgrade session db: %w", err)
	}

	logger.DebugCF("session", "Session store opened", map[string]interface{}{
		logger.FieldPath: path,
	})

	return &Store{
		path:      path,
		db:        db,
		container: container,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Device loads the stored device, or a fresh unregistered one when nothing
// has been paired yet.
func (s *Store) Device(ctx context.Context) (*store.Device, error) {
	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return device, nil
}

// Registered reports whether a paired device exists in the store.
func (s *Store) Registered(ctx context.Context) (bool, error) {
	devices, err := s.container.GetAllDevices(ctx)
	if err != nil {
		return false, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d != nil && d.ID != nil {
			return true, nil
		}
	}
	return false, nil
}

// Save writes the device credentials. Repeated saves of the same device are
// harmless, so callers may persist on every credential update.
func (s *Store) Save(ctx context.Context, device *store.Device) error {
	if device == nil || device.ID == nil {
		return fmt.Errorf("device is not registered")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := device.Save(ctx); err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	s.saves++
	logger.DebugCF("session", "Device credentials saved", map[string]interface{}{
		"jid":   device.ID.String(),
		"saves": s.saves,
	})
	return nil
}

// saveCount is the number of successful Save calls since Open.
func (s *Store) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) Close() error {
	return s.db.Close()
}
