package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

type recorder struct{ events []shared.Event }

func (r *recorder) Publish(_ context.Context, e shared.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *kv.Memory
	clock  *timeutil.ManualClock
	events *recorder
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	creds, err := NewStaticCredentials(
		admin.Credential{UserID: "u-1", Username: "Ops", Role: admin.RoleAdmin, PasswordHash: hash(t, "s3cret")},
		admin.Credential{UserID: "u-2", Username: "viewer", Role: admin.RoleAnalyst, PasswordHash: hash(t, "look")},
		admin.Credential{UserID: "u-3", Username: "locked", Role: admin.RoleEditor},
	)
	require.NoError(t, err)

	f := &fixture{
		clock:  timeutil.NewManualClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)),
		events: &recorder{},
	}
	f.store = kv.NewMemory().WithClock(f.clock.Now)
	ids := 0
	f.svc, err = NewService(creds, f.store, f.clock, Options{
		Policy: admin.DefaultPolicy(),
		Secret: []byte("test-secret"),
		Issuer: "academy-hub",
	}, nil, WithPublisher(f.events), WithSessionIDGenerator(func() string {
		ids++
		return fmt.Sprintf("sid-%d", ids)
	}))
	require.NoError(t, err)
	return f
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(nil, kv.NewMemory(), nil, Options{}, nil)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.Login(ctx, "  ops ", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Equal(t, "sid-1", grant.Session.ID)
	assert.Equal(t, "u-1", grant.Session.User.ID)
	assert.Equal(t, f.clock.Now().Add(8*time.Hour), grant.Session.SessionExpiry)
	assert.Equal(t, []shared.EventType{shared.EventAdminLoggedIn}, f.events.types())

	_, ok, err := f.store.Get(ctx, SessionKey("sid-1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "ops", "nope"},
		{"unknown user", "ghost", "s3cret"},
		{"empty hash never logs in", "locked", ""},
		{"empty hash with any password", "locked", "anything"},
		{"blank username", "   ", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
	assert.Zero(t, f.store.Len())
}

func TestValidate_TouchesActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Login(ctx, "ops", "s3cret")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	sess, err := f.svc.Validate(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), sess.LastActivity)

	// Activity keeps it alive past the inactivity limit measured from login.
	f.clock.Advance(50 * time.Minute)
	_, err = f.svc.Validate(ctx, grant.Token)
	assert.NoError(t, err)
}

func TestValidate_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("inactive", func(t *testing.T) {
		f := newFixture(t)
		grant, err := f.svc.Login(ctx, "ops", "s3cret")
		require.NoError(t, err)
		f.clock.Advance(61 * time.Minute)

		_, err = f.svc.Validate(ctx, grant.Token)
		assert.ErrorIs(t, err, shared.ErrSessionInactive)
		assert.True(t, shared.IsAuth(err))
		assert.Contains(t, f.events.types(), shared.EventAdminSessionClosed)

		// The record is gone, so the token is dead even with fresh activity.
		_, err = f.svc.Validate(ctx, grant.Token)
		assert.Error(t, err)
	})

	t.Run("expired after ttl", func(t *testing.T) {
		f := newFixture(t)
		grant, err := f.svc.Login(ctx, "ops", "s3cret")
		require.NoError(t, err)
		for i := 0; i < 8; i++ {
			f.clock.Advance(59 * time.Minute)
			_, err = f.svc.Validate(ctx, grant.Token)
			require.NoError(t, err)
		}
		f.clock.Advance(30 * time.Minute)
		_, err = f.svc.Validate(ctx, grant.Token)
		assert.ErrorIs(t, err, shared.ErrSessionExpired)
	})

	t.Run("garbage token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Validate(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Validate(ctx, "")
		assert.ErrorIs(t, err, shared.ErrNoSession)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		f := newFixture(t)
		other, err := NewService(f.svc.creds, f.store, f.clock, Options{Secret: []byte("other")}, nil)
		require.NoError(t, err)
		grant, err := other.Login(ctx, "ops", "s3cret")
		require.NoError(t, err)

		_, err = f.svc.Validate(ctx, grant.Token)
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Login(ctx, "viewer", "look")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	refreshed, err := f.svc.Refresh(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, grant.Session.ID, refreshed.Session.ID)
	assert.Equal(t, f.clock.Now(), refreshed.Session.LastActivity)
	// Refresh never extends past login + TTL.
	assert.Equal(t, grant.Session.LoginTime.Add(admin.DefaultSessionTTL), refreshed.Session.SessionExpiry)

	_, err = f.svc.Validate(ctx, refreshed.Token)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Login(ctx, "ops", "s3cret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, grant.Token))
	_, err = f.svc.Validate(ctx, grant.Token)
	assert.ErrorIs(t, err, shared.ErrSessionRevoked)

	require.NoError(t, f.svc.Logout(ctx, grant.Token))
	assert.Equal(t, []shared.EventType{shared.EventAdminLoggedIn, shared.EventAdminLoggedOut}, f.events.types())

	assert.Error(t, f.svc.Logout(ctx, "garbage"))
}

func TestStaticCredentials(t *testing.T) {
	_, err := NewStaticCredentials(admin.Credential{UserID: "x", Username: "a", Role: "janitor"})
	assert.ErrorIs(t, err, shared.ErrUnknownRole)

	_, err = NewStaticCredentials(
		admin.Credential{UserID: "1", Username: "a", Role: admin.RoleAdmin},
		admin.Credential{UserID: "2", Username: "A", Role: admin.RoleAdmin},
	)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	path := filepath.Join(t.TempDir(), "admins.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
admins:
  - id: u-9
    username: Root
    display_name: Root User
    role: super_admin
    password_hash: ""
`), 0o600))
	creds, err := LoadStaticCredentials(path)
	require.NoError(t, err)
	c, err := creds.FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "Root User", c.DisplayName)
	assert.Equal(t, admin.RoleSuperAdmin, c.Role)
	require.Len(t, creds.All(), 1)
	assert.Equal(t, "u-9", creds.All()[0].UserID)

	missing, err := LoadStaticCredentials(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Zero(t, missing.Len())
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, checkPassword(h, "pw"))
	assert.False(t, checkPassword(h, "PW"))

	_, err = HashPassword("")
	assert.Error(t, err)
}
