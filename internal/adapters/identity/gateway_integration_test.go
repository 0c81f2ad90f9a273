package identity_test

import (
	"context"
	"os"
	"testing"

	"github.com/mashoras/activity-service/internal/adapters/identity"
	"github.com/mashoras/activity-service/internal/adapters/repository"
)

func TestGateway_DeleteAccountReleasesEmail(t *testing.T) {
	dbURL := os.Getenv("TEST_DB_CONNECTION_STRING")
	if dbURL == "" {
		t.Skip("Skipping integration test: TEST_DB_CONNECTION_STRING not set")
	}
	ctx := context.Background()
	db, err := repository.Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	// ARRANGE
	const email = "gateway-test@uvg.edu.gt"
	db.Exec(`DELETE FROM credentials WHERE email = $1`, email)
	t.Cleanup(func() { db.Exec(`DELETE FROM credentials WHERE email = $1`, email) })
	gw := identity.NewGateway(db, nil)

	uid, err := gw.SignUp(ctx, email, "secret123")
	if err != nil {
		t.Fatalf("unexpected sign up error: %v", err)
	}
	if _, err := gw.SignUp(ctx, email, "secret123"); err != identity.ErrEmailInUse {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}

	// ACT
	if err := gw.DeleteAccount(ctx, uid); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	// ASSERT
	if _, err := gw.SignIn(ctx, email, "secret123"); err != identity.ErrInvalidCredentials {
		t.Errorf("expected credentials gone, got %v", err)
	}
	if _, err := gw.SignUp(ctx, email, "secret123"); err != nil {
		t.Errorf("expected the email to be free again, got %v", err)
	}
	if err := gw.DeleteAccount(ctx, "missing-uid"); err != nil {
		t.Errorf("expected deleting a missing account to succeed, got %v", err)
	}
}
