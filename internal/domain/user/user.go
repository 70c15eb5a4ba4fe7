package user

import (
	"net/mail"
	"strings"
)

// PasswordHasher names the algorithm a password digest was produced with.
type PasswordHasher string

const (
	HasherBcrypt       PasswordHasher = "bcrypt"
	HasherArgon2i      PasswordHasher = "argon2i"
	HasherArgon2id     PasswordHasher = "argon2id"
	HasherMD5          PasswordHasher = "md5"
	HasherPBKDF2SHA256 PasswordHasher = "pbkdf2_sha256"
	HasherScrypt       PasswordHasher = "scrypt"
)

// User is the canonical migration record. EmailAddresses is ordered, never
// empty and case-preserved; the first entry is the primary address. A User is
// immutable once built.
type User struct {
	ID                   string
	FirstName            string
	LastName             string
	Username             string
	EmailAddresses       []string
	PasswordDigest       string
	PasswordHasher       PasswordHasher
	PrimaryEmailVerified *bool
	UnsafeMetadata       map[string]any
	PublicMetadata       map[string]any
	PrivateMetadata      map[string]any
}

func NewUser(id string, emails []string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ValidationError{Field: "id", Reason: "missing"}
	}
	if len(emails) == 0 {
		return User{}, ValidationError{Field: "email", Reason: "at least one email address is required"}
	}
	if _, err := mail.ParseAddress(emails[0]); err != nil {
		return User{}, ValidationError{Field: "email", Reason: "invalid primary email address"}
	}

	return User{
		ID:             id,
		EmailAddresses: emails,
	}, nil
}

// PrimaryEmail returns the first email address.
func (u User) PrimaryEmail() string {
	return u.EmailAddresses[0]
}
