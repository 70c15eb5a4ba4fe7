package migration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammadpnp/user-migrate/internal/application/migration"
	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
)

type identityCall struct {
	op     string
	email  string
	userID string
	params domain.UpdateUserParams
}

type fakeIdentity struct {
	mu    sync.Mutex
	calls []identityCall

	createErr  error
	createID   string
	listResult []domain.RemoteUser
	listErr    error
	updateErr  error
}

func (f *fakeIdentity) CreateUser(ctx context.Context, params domain.CreateUserParams) (domain.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, identityCall{op: "create", email: params.EmailAddress})
	if f.createErr != nil {
		return domain.RemoteUser{}, f.createErr
	}
	id := f.createID
	if id == "" {
		id = "user_new"
	}
	return domain.RemoteUser{ID: id}, nil
}

func (f *fakeIdentity) ListUsersByEmail(ctx context.Context, email string) ([]domain.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, identityCall{op: "list", email: email})
	return f.listResult, f.listErr
}

func (f *fakeIdentity) UpdateUser(ctx context.Context, userID string, params domain.UpdateUserParams) (domain.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, identityCall{op: "update", userID: userID, params: params})
	if f.updateErr != nil {
		return domain.RemoteUser{}, f.updateErr
	}
	return domain.RemoteUser{ID: userID}, nil
}

func (f *fakeIdentity) callOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.op
	}
	return ops
}

func mustUser(t *testing.T, emails ...string) domain.User {
	t.Helper()
	u, err := domain.NewUser("src_1", emails)
	if err != nil {
		t.Fatalf("build user: %v", err)
	}
	return u
}

func TestReconcileSkipsMultiEmailWhenDisabled(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{}
	r := migration.NewReconciler(identity, false, migration.VerifyNever, nil)

	out, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com", "b@x.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Kind != domain.OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", out.Kind)
	}
	if len(identity.callOps()) != 0 {
		t.Fatalf("expected zero remote calls, got %v", identity.callOps())
	}
}

func TestReconcileCreateSuccess(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{createID: "user_1"}
	r := migration.NewReconciler(identity, true, migration.VerifyNever, nil)

	out, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com", "b@x.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Kind != domain.OutcomeImported || out.RemoteUserID != "user_1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Warnings != 0 {
		t.Fatalf("expected no warnings, got %d", out.Warnings)
	}
}

func TestReconcileVerifiesEmailAlways(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{createID: "user_1"}
	r := migration.NewReconciler(identity, true, migration.VerifyAlways, nil)

	out, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Kind != domain.OutcomeImported {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	calls := identity.calls
	if len(calls) != 2 || calls[1].op != "update" {
		t.Fatalf("expected create then update, got %v", identity.callOps())
	}
	if calls[1].params.EmailVerified == nil || !*calls[1].params.EmailVerified {
		t.Fatal("expected update to mark email verified")
	}
}

func TestReconcileVerifyFromCSV(t *testing.T) {
	t.Parallel()

	verified := true
	u := mustUser(t, "a@x.com")
	u.PrimaryEmailVerified = &verified

	identity := &fakeIdentity{}
	r := migration.NewReconciler(identity, true, migration.VerifyFromCSV, nil)
	if _, err := r.Reconcile(context.Background(), u); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ops := identity.callOps()
	if len(ops) != 2 || ops[1] != "update" {
		t.Fatalf("expected verification update, got %v", ops)
	}

	// flag absent: no verification call
	identity = &fakeIdentity{}
	r = migration.NewReconciler(identity, true, migration.VerifyFromCSV, nil)
	if _, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ops = identity.callOps()
	if len(ops) != 1 {
		t.Fatalf("expected create only, got %v", ops)
	}
}

func TestReconcileVerificationSoftFailure(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{createID: "user_1", updateErr: errors.New("verification rejected")}
	r := migration.NewReconciler(identity, true, migration.VerifyAlways, nil)

	out, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Kind != domain.OutcomeImported {
		t.Fatalf("soft failure must not change the outcome, got %s", out.Kind)
	}
	if out.Warnings != 1 {
		t.Fatalf("expected one warning, got %d", out.Warnings)
	}
}

func TestReconcileReusesExistingUser(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{
		createErr:  errors.New("email taken"),
		listResult: []domain.RemoteUser{{ID: "user_existing"}},
	}
	u := mustUser(t, "a@x.com")
	u.PasswordDigest = "$2a$12$abc"
	u.PasswordHasher = domain.HasherBcrypt

	r := migration.NewReconciler(identity, true, migration.VerifyNever, nil)
	out, err := r.Reconcile(context.Background(), u)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Kind != domain.OutcomeImported || out.RemoteUserID != "user_existing" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	ops := identity.callOps()
	want := []string{"create", "list", "update"}
	if len(ops) != len(want) {
		t.Fatalf("unexpected calls: %v", ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("unexpected calls: %v", ops)
		}
	}
}

func TestReconcilePasswordUpdateSoftFailure(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{
		createErr:  errors.New("email taken"),
		listResult: []domain.RemoteUser{{ID: "user_existing"}},
		updateErr:  errors.New("digest rejected"),
	}
	u := mustUser(t, "a@x.com")
	u.PasswordDigest = "$2a$12$abc"

	r := migration.NewReconciler(identity, true, migration.VerifyNever, nil)
	out, err := r.Reconcile(context.Background(), u)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Kind != domain.OutcomeImported {
		t.Fatalf("soft failure must not change the outcome, got %s", out.Kind)
	}
	if out.Warnings != 1 {
		t.Fatalf("expected one warning, got %d", out.Warnings)
	}
}

func TestReconcileUnmatchedLookupFails(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		matches []domain.RemoteUser
		reason  string
	}{
		{nil, domain.ErrNoMatch.Error()},
		{[]domain.RemoteUser{{ID: "a"}, {ID: "b"}}, domain.ErrAmbiguousMatch.Error()},
	} {
		identity := &fakeIdentity{createErr: errors.New("email taken"), listResult: tc.matches}
		r := migration.NewReconciler(identity, true, migration.VerifyNever, nil)

		out, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Kind != domain.OutcomeFailed {
			t.Fatalf("expected failed, got %s", out.Kind)
		}
		if out.Reason != tc.reason {
			t.Fatalf("unexpected reason: %s", out.Reason)
		}
	}
}

func TestReconcileThrottlePropagates(t *testing.T) {
	t.Parallel()

	rl := &domain.RateLimitError{RetryAfter: 7 * time.Second}

	// at create
	identity := &fakeIdentity{createErr: rl}
	r := migration.NewReconciler(identity, true, migration.VerifyNever, nil)
	_, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
	got, ok := domain.IsRateLimit(err)
	if !ok || got.RetryAfter != 7*time.Second {
		t.Fatalf("expected rate limit to propagate, got %v", err)
	}

	// at lookup
	identity = &fakeIdentity{createErr: errors.New("email taken"), listErr: rl}
	r = migration.NewReconciler(identity, true, migration.VerifyNever, nil)
	_, err = r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
	if _, ok := domain.IsRateLimit(err); !ok {
		t.Fatalf("expected rate limit to propagate, got %v", err)
	}

	// at verification
	identity = &fakeIdentity{createID: "user_1", updateErr: rl}
	r = migration.NewReconciler(identity, true, migration.VerifyAlways, nil)
	_, err = r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
	if _, ok := domain.IsRateLimit(err); !ok {
		t.Fatalf("expected rate limit to propagate, got %v", err)
	}
}

func TestReconcileLookupErrorSurfaces(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{createErr: errors.New("email taken"), listErr: errors.New("api down")}
	r := migration.NewReconciler(identity, true, migration.VerifyNever, nil)

	_, err := r.Reconcile(context.Background(), mustUser(t, "a@x.com"))
	if err == nil {
		t.Fatal("expected error")
	}
}
