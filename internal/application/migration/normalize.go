package migration

import (
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/source"
)

// Normalize maps one raw source record into the canonical user shape. It is
// pure: no I/O, no remote calls.
func Normalize(rec source.Record) (domain.User, error) {
	if rec.Object != nil {
		return normalizeObject(rec.Object)
	}
	return normalizeRow(rec.Fields)
}

type rawObject struct {
	ID                   string         `json:"id"`
	FirstName            string         `json:"first_name"`
	LastName             string         `json:"last_name"`
	Username             string         `json:"username"`
	EmailAddresses       string         `json:"email_addresses"`
	PasswordDigest       string         `json:"password_digest"`
	PasswordHasher       string         `json:"password_hasher"`
	PrimaryEmailVerified *bool          `json:"primary_email_verified"`
	UnsafeMetadata       map[string]any `json:"unsafe_metadata"`
	PublicMetadata       map[string]any `json:"public_metadata"`
	PrivateMetadata      map[string]any `json:"private_metadata"`
}

func normalizeObject(raw json.RawMessage) (domain.User, error) {
	var obj rawObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return domain.User{}, domain.ValidationError{Field: "record", Reason: fmt.Sprintf("malformed object: %v", err)}
	}

	// multiple addresses travel pipe-delimited in a single field, in order
	emails := splitMulti(obj.EmailAddresses)

	u, err := domain.NewUser(obj.ID, emails)
	if err != nil {
		return domain.User{}, err
	}

	u.FirstName = obj.FirstName
	u.LastName = obj.LastName
	u.Username = obj.Username
	u.PasswordDigest = obj.PasswordDigest
	u.PasswordHasher = domain.PasswordHasher(obj.PasswordHasher)
	u.PrimaryEmailVerified = obj.PrimaryEmailVerified
	u.UnsafeMetadata = obj.UnsafeMetadata
	u.PublicMetadata = obj.PublicMetadata
	u.PrivateMetadata = obj.PrivateMetadata
	return u, nil
}

func normalizeRow(fields map[string]string) (domain.User, error) {
	primary := strings.TrimSpace(fields["primary_email_address"])
	verified := splitMulti(fields["verified_email_addresses"])
	unverified := splitMulti(fields["unverified_email_addresses"])

	emails := mergeEmails(primary, verified, unverified)

	u, err := domain.NewUser(fields["id"], emails)
	if err != nil {
		return domain.User{}, err
	}

	u.FirstName = fields["first_name"]
	u.LastName = fields["last_name"]
	u.Username = fields["username"]
	u.PasswordDigest = fields["password_digest"]
	u.PasswordHasher = domain.PasswordHasher(fields["password_hasher"])

	if primary != "" && fields["verified_email_addresses"] != "" {
		ok := containsFold(verified, primary)
		u.PrimaryEmailVerified = &ok
	}
	return u, nil
}

// mergeEmails builds the ordered address list: primary first, then verified,
// then unverified, dropping case-insensitive duplicates after the first
// occurrence.
func mergeEmails(primary string, verified, unverified []string) []string {
	seen := make(map[string]struct{})
	var merged []string

	appendEmail := func(email string) {
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, email)
	}

	if primary != "" {
		appendEmail(primary)
	}
	for _, e := range verified {
		appendEmail(e)
	}
	for _, e := range unverified {
		appendEmail(e)
	}
	return merged
}

func splitMulti(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
