package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// ErrBlobNotExist is returned by a Blob that has never been written.
var ErrBlobNotExist = errors.New("blob does not exist")

// Blob is the backing object of a FileStore.
type Blob interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// --------------------------------------------------------------------------
// Document format: {"user_id": <last assigned id>, "users": [...]}
// --------------------------------------------------------------------------

type fileUser struct {
	ID        int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	Location  string `json:"location"`
	Token     string `json:"token"`
	CreatedAt string `json:"created_at,omitempty"`
}

type document struct {
	LastID int64      `json:"user_id"`
	Users  []fileUser `json:"users"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseCreatedAt(s string) time.Time {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (f fileUser) toUser() User {
	name := f.Username
	if name == "" {
		name = f.Name
	}
	return User{
		ID:        f.ID,
		Username:  name,
		Location:  f.Location,
		Token:     f.Token,
		CreatedAt: parseCreatedAt(f.CreatedAt),
	}
}

func fromUser(u User) fileUser {
	f := fileUser{ID: u.ID, Username: u.Username, Location: u.Location, Token: u.Token}
	if !u.CreatedAt.IsZero() {
		f.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return f
}

func (d *document) nextID() int64 {
	next := d.LastID
	for _, u := range d.Users {
		if u.ID > next {
			next = u.ID
		}
	}
	return next + 1
}

func (d *document) find(id int64) int {
	for i, u := range d.Users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// ReadDocument decodes a user document.
func ReadDocument(r io.Reader) ([]User, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	out := make([]User, 0, len(doc.Users))
	for _, f := range doc.Users {
		out = append(out, f.toUser())
	}
	return out, nil
}

// --------------------------------------------------------------------------
// FileStore
// --------------------------------------------------------------------------

// FileStore keeps all users in one JSON document. Writes are serialized
// in-process; concurrent writers in other processes are not coordinated.
type FileStore struct {
	mu     sync.Mutex
	blob   Blob
	now    func() time.Time
	logger *slog.Logger
}

// NewFileStore creates a store over blob.
func NewFileStore(blob Blob, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{blob: blob, now: time.Now, logger: logger}
}

func (s *FileStore) load(ctx context.Context) (*document, error) {
	data, err := s.blob.Read(ctx)
	if errors.Is(err, ErrBlobNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &document{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	return &doc, nil
}

func (s *FileStore) save(ctx context.Context, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user document: %w", err)
	}
	if err := s.blob.Write(ctx, data); err != nil {
		return fmt.Errorf("write user document: %w", err)
	}
	return nil
}

// ListUsers returns every user in document order.
func (s *FileStore) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.Lock()
	doc, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(doc.Users))
	for _, f := range doc.Users {
		out = append(out, f.toUser())
	}
	return out, nil
}

// GetByUsername returns the user with the given username.
func (s *FileStore) GetByUsername(ctx context.Context, username string) (User, error) {
	list, err := s.ListUsers(ctx)
	if err != nil {
		return User{}, err
	}
	for _, u := range list {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// CreateUser appends a user with the next free id.
func (s *FileStore) CreateUser(ctx context.Context, username, location string) (User, error) {
	if err := ValidateNew(username, location); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return User{}, err
	}
	for _, f := range doc.Users {
		if f.toUser().Username == username {
			return User{}, ErrUsernameTaken
		}
	}

	u := User{
		ID:        doc.nextID(),
		Username:  username,
		Location:  strings.TrimSpace(location),
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	doc.Users = append(doc.Users, fromUser(u))
	doc.LastID = u.ID

	if err := s.save(ctx, doc); err != nil {
		return User{}, err
	}
	s.logger.Info("User created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// SetToken stores the device token for a user.
func (s *FileStore) SetToken(ctx context.Context, id int64, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required: %w", ErrInvalidUser)
	}
	return s.update(ctx, id, func(f *fileUser) { f.Token = token })
}

// ClearToken removes the device token, which makes the user ineligible.
func (s *FileStore) ClearToken(ctx context.Context, id int64) error {
	return s.update(ctx, id, func(f *fileUser) { f.Token = "" })
}

// UpdateLocation changes the free-text location.
func (s *FileStore) UpdateLocation(ctx context.Context, id int64, location string) error {
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("location is required: %w", ErrInvalidUser)
	}
	return s.update(ctx, id, func(f *fileUser) { f.Location = strings.TrimSpace(location) })
}

func (s *FileStore) update(ctx context.Context, id int64, fn func(*fileUser)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := doc.find(id)
	if i < 0 {
		return ErrUserNotFound
	}
	fn(&doc.Users[i])
	return s.save(ctx, doc)
}

// --------------------------------------------------------------------------
// Blob backends
// --------------------------------------------------------------------------

// LocalBlob is a file on local disk.
type LocalBlob struct {
	Path string
}

// Read returns the file contents.
func (b LocalBlob) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotExist
	}
	return data, err
}

// Write replaces the file atomically via a temp file and rename.
func (b LocalBlob) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), b.Path)
}

// GCSBlob is an object in a Cloud Storage bucket.
type GCSBlob struct {
	client *storage.Client
	bucket string
	object string
	logger *slog.Logger
}

// NewGCSBlob creates a blob for bucket/object.
func NewGCSBlob(client *storage.Client, bucket, object string, logger *slog.Logger) *GCSBlob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSBlob{client: client, bucket: bucket, object: object, logger: logger}
}

// Read downloads the object with retries. A missing object is not retried.
func (b *GCSBlob) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	missing := false
	err := retry.Do(
		func() error {
			r, err := b.client.Bucket(b.bucket).Object(b.object).NewReader(ctx)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotExist) {
					missing = true
					return retry.Unrecoverable(err)
				}
				return fmt.Errorf("open storage reader: %w", err)
			}
			defer r.Close()

			data, err = io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read from storage: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying user document read", "attempt", n, "object", b.object, "error", err)
		}),
	)
	if missing {
		return nil, ErrBlobNotExist
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write uploads the object with retries.
func (b *GCSBlob) Write(ctx context.Context, data []byte) error {
	return retry.Do(
		func() error {
			w := b.client.Bucket(b.bucket).Object(b.object).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, err := w.Write(data); err != nil {
				_ = w.Close()
				return fmt.Errorf("write to storage: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("close storage writer: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying user document write", "attempt", n, "object", b.object, "error", err)
		}),
	)
}
