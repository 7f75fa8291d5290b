package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/cartsync/internal/mutation"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRequest creates a request with minimal required fields.
func createTestRequest(kind mutation.Kind, target string, issuedAt int64) mutation.Request {
	return mutation.Request{
		Kind:     kind,
		TargetID: target,
		Payload:  map[string]string{"item_id": target},
		IssuedAt: issuedAt,
		Method:   "POST",
		URL:      "http://shop.test/mainapp/cart/update/",
	}
}
