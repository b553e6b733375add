package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// CredentialStore looks up admin credentials by username.
// Implementations return an error matching shared.ErrNotFound for unknown users.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (admin.Credential, error)
}

// StaticCredentials is an in-memory credential table, usually loaded from YAML.
type StaticCredentials struct {
	byName map[string]admin.Credential
}

// NewStaticCredentials indexes creds by lower-cased username.
func NewStaticCredentials(creds ...admin.Credential) (*StaticCredentials, error) {
	s := &StaticCredentials{byName: make(map[string]admin.Credential, len(creds))}
	for _, c := range creds {
		name := normalizeUsername(c.Username)
		if name == "" || c.UserID == "" {
			return nil, fmt.Errorf("admin credential needs id and username")
		}
		if !c.Role.IsValid() {
			return nil, fmt.Errorf("admin %q: %w", c.Username, shared.ErrUnknownRole)
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("admin %q: %w", c.Username, shared.ErrAlreadyExists)
		}
		s.byName[name] = c
	}
	return s, nil
}

type credentialFile struct {
	Admins []admin.Credential `yaml:"admins"`
}

// LoadStaticCredentials reads a YAML file with a top-level "admins" list.
// A missing file yields an empty table, which rejects every login.
func LoadStaticCredentials(path string) (*StaticCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewStaticCredentials()
		}
		return nil, fmt.Errorf("read admin users: %w", err)
	}
	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse admin users: %w", err)
	}
	return NewStaticCredentials(f.Admins...)
}

// FindByUsername implements CredentialStore.
func (s *StaticCredentials) FindByUsername(_ context.Context, username string) (admin.Credential, error) {
	c, ok := s.byName[normalizeUsername(username)]
	if !ok {
		return admin.Credential{}, shared.WrapError("admin", "FindByUsername", shared.ErrNotFound, "admin user not found", nil)
	}
	return c, nil
}

// Len returns the number of admins.
func (s *StaticCredentials) Len() int { return len(s.byName) }

// All returns the admins ordered by username.
func (s *StaticCredentials) All() []admin.Credential {
	out := make([]admin.Credential, 0, len(s.byName))
	for _, c := range s.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return normalizeUsername(out[i].Username) < normalizeUsername(out[j].Username)
	})
	return out
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// ─────────────────────────────────────────────────────────────────────────────
// Passwords
// ─────────────────────────────────────────────────────────────────────────────

// HashPassword returns a bcrypt hash suitable for the password_hash column.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// checkPassword compares password with hash. An empty hash never matches,
// but still pays for a bcrypt comparison so unknown users take as long as known ones.
func checkPassword(hash, password string) bool {
	if hash == "" {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("academy-hub"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
