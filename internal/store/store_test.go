package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestNormalizeAccount(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"jane.doe@example.com", "jane_doe"},
		{"runner@garmin.com", "runner"},
		{"a.b.c@x.org", "a_b_c"},
		{"noatsign", "noatsign"},
	}
	for _, tt := range tests {
		if got := NormalizeAccount(tt.email); got != tt.want {
			t.Errorf("NormalizeAccount(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := UserKey("jane.doe@example.com"); got != "users/jane_doe" {
		t.Errorf("UserKey = %q", got)
	}
	if got := InsightsKey("jane.doe@example.com"); got != "insights/jane_doe" {
		t.Errorf("InsightsKey = %q", got)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer backend.Close()

	key := "users/jane_doe"
	if _, err := backend.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing key err = %v, want ErrNotFound", err)
	}

	if err := backend.Save(ctx, key, []byte(`{"year": 2025}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := backend.Load(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"year": 2025}` {
		t.Errorf("payload = %s", got)
	}

	// Saving again overwrites
	if err := backend.Save(ctx, key, []byte(`{"year": 2024}`)); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, _ = backend.Load(ctx, key)
	if string(got) != `{"year": 2024}` {
		t.Errorf("payload after overwrite = %s", got)
	}

	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := backend.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete err = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is fine
	if err := backend.Delete(ctx, "users/nobody"); err != nil {
		t.Errorf("delete missing key: %v", err)
	}
}
