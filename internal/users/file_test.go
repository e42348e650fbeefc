package users

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const legacyDocument = `{
  "user_id": 2,
  "users": [
    {"user_id": 1, "name": "alice", "location": "Tokyo", "token": "ExponentPushToken[a]", "created_at": "2024-05-01T10:00:00.123456"},
    {"user_id": 2, "username": "bob", "location": "", "token": "", "created_at": "2024-05-02T08:30:00"}
  ]
}`

func newFileStore(t *testing.T, seed string) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "user.json")
	if seed != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	s := NewFileStore(LocalBlob{Path: path}, nil)
	s.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }
	return s, path
}

func TestFileStoreReadsLegacyDocument(t *testing.T) {
	t.Parallel()

	s, _ := newFileStore(t, legacyDocument)
	list, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d users, want 2", len(list))
	}
	alice := list[0]
	if alice.Username != "alice" || alice.Location != "Tokyo" || !alice.Eligible() {
		t.Fatalf("unexpected alice %+v", alice)
	}
	if alice.CreatedAt.Year() != 2024 || alice.CreatedAt.Month() != time.May {
		t.Fatalf("created_at not parsed: %v", alice.CreatedAt)
	}
	if list[1].Eligible() {
		t.Fatal("bob has no token or location and must not be eligible")
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s, _ := newFileStore(t, "")
	list, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty directory, got %d", len(list))
	}
}

func TestFileStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, path := newFileStore(t, legacyDocument)

	u, err := s.CreateUser(ctx, "carol", "  Mumbai ")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != 3 || u.Location != "Mumbai" || u.Token != "" {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := s.CreateUser(ctx, "alice", "Paris"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate username: got %v", err)
	}
	if _, err := s.CreateUser(ctx, "", "Paris"); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("empty username: got %v", err)
	}

	if err := s.SetToken(ctx, u.ID, "ExponentPushToken[c]"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := s.UpdateLocation(ctx, u.ID, "Delhi"); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	got, err := s.GetByUsername(ctx, "carol")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if got.Token != "ExponentPushToken[c]" || got.Location != "Delhi" || !got.Eligible() {
		t.Fatalf("unexpected carol %+v", got)
	}

	if err := s.ClearToken(ctx, u.ID); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	got, _ = s.GetByUsername(ctx, "carol")
	if got.Eligible() {
		t.Fatal("user without token must not be eligible")
	}

	if err := s.SetToken(ctx, 99, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("SetToken unknown id: got %v", err)
	}
	if _, err := s.GetByUsername(ctx, "dave"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetByUsername unknown: got %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"user_id": 3`) {
		t.Fatalf("document did not record last id:\n%s", raw)
	}
	list, err := ReadDocument(strings.NewReader(string(raw)))
	if err != nil || len(list) != 3 {
		t.Fatalf("ReadDocument: %d users, %v", len(list), err)
	}
}

func TestFileStoreConcurrentCreates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newFileStore(t, "")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.CreateUser(ctx, "user"+string(rune('a'+i)), "Tokyo"); err != nil {
				t.Errorf("CreateUser: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int64]bool)
	for _, u := range list {
		if seen[u.ID] {
			t.Fatalf("duplicate id %d", u.ID)
		}
		seen[u.ID] = true
	}
	if len(list) != 10 {
		t.Fatalf("got %d users, want 10", len(list))
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		user User
		want bool
	}{
		{User{Location: "Tokyo", Token: "t"}, true},
		{User{Location: "Tokyo", Token: ""}, false},
		{User{Location: "   ", Token: "t"}, false},
		{User{Location: "", Token: ""}, false},
	}
	for _, tt := range tests {
		if got := tt.user.Eligible(); got != tt.want {
			t.Errorf("Eligible(%+v) = %v, want %v", tt.user, got, tt.want)
		}
	}
}
