package user

import "context"

// RemoteUser is an account that exists on the remote identity service.
type RemoteUser struct {
	ID string
}

type CreateUserParams struct {
	ExternalID      string
	FirstName       string
	LastName        string
	Username        string
	EmailAddress    string
	PasswordDigest  string
	PasswordHasher  PasswordHasher
	UnsafeMetadata  map[string]any
	PublicMetadata  map[string]any
	PrivateMetadata map[string]any
}

type UpdateUserParams struct {
	EmailVerified  *bool
	PasswordDigest string
	PasswordHasher PasswordHasher
}

// IdentityService is the remote identity API consumed by the reconciler.
// Implementations must be safe for concurrent use and surface throttling as
// *RateLimitError.
type IdentityService interface {
	CreateUser(ctx context.Context, params CreateUserParams) (RemoteUser, error)
	ListUsersByEmail(ctx context.Context, email string) ([]RemoteUser, error)
	UpdateUser(ctx context.Context, userID string, params UpdateUserParams) (RemoteUser, error)
}
