package service

import (
	"context"
	"errors"
	"testing"

	"peoplegrid_backend/internal/util"
)

func TestEnsureUserIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	svc := NewUserService(env.users)
	ctx := context.Background()

	if err := svc.EnsureUser(ctx, 1, "ada"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if err := svc.EnsureUser(ctx, 1, "renamed"); err != nil {
		t.Fatalf("Second EnsureUser failed: %v", err)
	}

	user, err := svc.GetProfile(ctx, 1)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if user.Username != "ada" {
		t.Errorf("Expected existing username to be kept, got %s", user.Username)
	}
}

func TestEnsureUserFallsBackOnTakenUsername(t *testing.T) {
	env := newTestEnv(t)
	svc := NewUserService(env.users)
	ctx := context.Background()

	env.user(t, 1, "ada")
	if err := svc.EnsureUser(ctx, 2, "ada"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	user, err := svc.GetProfile(ctx, 2)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if user.Username != "user2" {
		t.Errorf("Expected fallback username user2, got %s", user.Username)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	svc := NewUserService(env.users)
	ctx := context.Background()
	env.user(t, 1, "ada")
	env.user(t, 2, "grace")

	bio := "analytical engines"
	age := 36
	status := "it's complicated"
	user, err := svc.UpdateProfile(ctx, 1, ProfileUpdate{Bio: &bio, Age: &age, RelationshipStatus: &status})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if user.Bio != bio || user.Age == nil || *user.Age != age || user.RelationshipStatus != status {
		t.Errorf("Expected profile fields to be updated, got %+v", user)
	}
	if user.Username != "ada" {
		t.Errorf("Expected untouched username, got %s", user.Username)
	}

	taken := "grace"
	if _, err := svc.UpdateProfile(ctx, 1, ProfileUpdate{Username: &taken}); !errors.Is(err, util.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for taken username, got %v", err)
	}

	badAge := -1
	if _, err := svc.UpdateProfile(ctx, 1, ProfileUpdate{Age: &badAge}); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative age, got %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, 99, ProfileUpdate{Bio: &bio}); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}
}
