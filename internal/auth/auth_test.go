package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/store"
)

func setupService(t *testing.T) (*Service, *store.SQLiteStore, *TokenIssuer) {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "auth.db"), 10, logger.Nop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	tokens := NewTokenIssuer("test-secret", time.Hour)
	return NewService(s, tokens, logger.Nop()), s, tokens
}

func signup(t *testing.T, svc *Service, username, password string) *store.User {
	t.Helper()
	u, err := svc.Signup(context.Background(), SignupInput{Username: username, Email: username + "@example.com", Password: password})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	return u
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "s3cret" || !CheckPasswordHash("s3cret", hash) {
		t.Error("hash should verify the original password")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Error("hash must not verify a different password")
	}
}

func TestPasswordByteLimit(t *testing.T) {
	// 60 characters but 120 bytes.
	long := strings.Repeat("é", 60)
	if _, err := HashPassword(long); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Errorf("a %d-byte password should hash, got %v", MaxPasswordBytes, err)
	}

	svc, _, _ := setupService(t)
	_, err := svc.Signup(context.Background(), SignupInput{Username: "alice", Email: "a@example.com", Password: long})
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Signup should surface ErrPasswordTooLong, got %v", err)
	}
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := issuer.Issue("alice")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		sub, err := issuer.Parse(token)
		if err != nil || sub != "alice" {
			t.Errorf("Parse = %q, %v", sub, err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokenIssuer("secret", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _ := past.Issue("alice")
		if _, err := issuer.Parse(token); err == nil {
			t.Error("expected expired token to be rejected")
		}
	})

	t.Run("other secret", func(t *testing.T) {
		token, _ := NewTokenIssuer("other", time.Hour).Issue("alice")
		if _, err := issuer.Parse(token); err == nil {
			t.Error("expected token signed with another secret to be rejected")
		}
	})

	t.Run("tampered", func(t *testing.T) {
		token, _ := issuer.Issue("alice")
		if _, err := issuer.Parse(token[:len(token)-2] + "xx"); err == nil {
			t.Error("expected tampered token to be rejected")
		}
	})

	t.Run("unsigned", func(t *testing.T) {
		token, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if _, err := issuer.Parse(token); err == nil {
			t.Error("expected alg none to be rejected")
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		token, _ := issuer.Issue("")
		if _, err := issuer.Parse(token); err == nil {
			t.Error("expected token without subject to be rejected")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := issuer.Parse("not-a-token"); err == nil {
			t.Error("expected malformed token to be rejected")
		}
	})
}

func TestSignupDuplicate(t *testing.T) {
	svc, _, _ := setupService(t)
	signup(t, svc, "alice", "pw")
	_, err := svc.Signup(context.Background(), SignupInput{Username: "alice", Email: "x@example.com", Password: "pw2"})
	if !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()
	signup(t, svc, "alice", "pw")

	if _, err := svc.Login(ctx, "alice", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	token, err := svc.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	user, err := svc.Authenticate(ctx, token)
	if err != nil || user.Username != "alice" {
		t.Fatalf("Authenticate = %+v, %v", user, err)
	}

	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for garbage, got %v", err)
	}

	if err := st.SetUserDisabled(ctx, "alice", true); err != nil {
		t.Fatalf("SetUserDisabled failed: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for disabled user, got %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected disabled user login to fail, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()
	user := signup(t, svc, "alice", "pw")
	oldToken, _ := svc.Login(ctx, "alice", "pw")

	if _, _, err := svc.UpdateProfile(ctx, user, ProfileUpdate{Username: "mallory", Email: "m@example.com", CurrentPassword: "bad"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	unchanged, _ := st.GetUserByUsername(ctx, "alice")
	if unchanged == nil || unchanged.Email != "alice@example.com" {
		t.Fatalf("profile must be unchanged after a wrong password, got %+v", unchanged)
	}

	name := "Alice Renamed"
	updated, token, err := svc.UpdateProfile(ctx, user, ProfileUpdate{Username: "alice2", FullName: &name, Email: "a2@example.com", CurrentPassword: "pw"})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Username != "alice2" || updated.FullName == nil || *updated.FullName != name {
		t.Errorf("unexpected updated user %+v", updated)
	}
	if u, err := svc.Authenticate(ctx, token); err != nil || u.Username != "alice2" {
		t.Errorf("new token should resolve to alice2, got %+v, %v", u, err)
	}
	if _, err := svc.Authenticate(ctx, oldToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("old token names a user that no longer exists, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	user := signup(t, svc, "alice", "old-pw")

	if err := svc.ChangePassword(ctx, user, "wrong", "new-pw"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user, "old-pw", "new-pw"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "old-pw"); err == nil {
		t.Error("old password should no longer work")
	}
	if _, err := svc.Login(ctx, "alice", "new-pw"); err != nil {
		t.Errorf("new password should work, got %v", err)
	}
}
