package storage

import "fmt"

// Open returns the backend named by backend ("badger" or "memory")
func Open(backend, dataDir string) (Storage, error) {
	switch backend {
	case "badger":
		return NewBadgerStorage(dataDir)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
