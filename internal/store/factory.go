package store

import (
	"context"
	"fmt"
	"strings"
)

// Open creates a Backend by name. For sqlite, path is the database file and defaults
// to DefaultDBPath when empty; the memory backend ignores path.
func Open(ctx context.Context, backend, path string) (Backend, error) {
	switch strings.TrimSpace(backend) {
	case BackendSQLite, "":
		if strings.TrimSpace(path) == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(ctx, path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s, %s)", backend, BackendSQLite, BackendMemory)
	}
}
