package database

import (
	"context"
	"testing"
)

func TestGetStore_NotInitialized(t *testing.T) {
	RegisterPostgresBackend(nil)

	if IsInitialized() {
		t.Fatal("expected backend to be uninitialized")
	}
	if _, err := GetStore(context.Background()); err == nil {
		t.Error("expected error when backend is not registered")
	}
}
