package migration

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"go.uber.org/zap"
)

// EmailVerifiedMode controls whether a migrated user's primary email is
// marked verified on the remote service.
type EmailVerifiedMode string

const (
	VerifyNever   EmailVerifiedMode = "never"
	VerifyAlways  EmailVerifiedMode = "always"
	VerifyFromCSV EmailVerifiedMode = "from-csv"
)

func ParseEmailVerifiedMode(raw string) (EmailVerifiedMode, error) {
	switch EmailVerifiedMode(strings.ToLower(strings.TrimSpace(raw))) {
	case VerifyNever, "":
		return VerifyNever, nil
	case VerifyAlways:
		return VerifyAlways, nil
	case VerifyFromCSV:
		return VerifyFromCSV, nil
	default:
		return "", fmt.Errorf("unsupported email-verified mode %q", raw)
	}
}

// Reconciler decides create-vs-reuse for one canonical record against the
// remote identity service. It is the only component that talks to the remote
// service. Throttling signals pass through untouched; every other remote
// failure resolves to a terminal outcome or an error the engine classifies.
type Reconciler struct {
	identity          domain.IdentityService
	processMultiEmail bool
	verifiedMode      EmailVerifiedMode
	logger            *zap.Logger
}

func NewReconciler(identity domain.IdentityService, processMultiEmail bool, verifiedMode EmailVerifiedMode, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		identity:          identity,
		processMultiEmail: processMultiEmail,
		verifiedMode:      verifiedMode,
		logger:            logger.Named("reconciler"),
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, u domain.User) (domain.Outcome, error) {
	if len(u.EmailAddresses) > 1 && !r.processMultiEmail {
		return domain.Skipped("multiple emails, multi-email disabled"), nil
	}

	created, err := r.identity.CreateUser(ctx, domain.CreateUserParams{
		ExternalID:      u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Username:        u.Username,
		EmailAddress:    u.PrimaryEmail(),
		PasswordDigest:  u.PasswordDigest,
		PasswordHasher:  u.PasswordHasher,
		UnsafeMetadata:  u.UnsafeMetadata,
		PublicMetadata:  u.PublicMetadata,
		PrivateMetadata: u.PrivateMetadata,
	})
	if err == nil {
		warnings, verr := r.applyVerification(ctx, u, created.ID)
		if verr != nil {
			return domain.Outcome{}, verr
		}
		out := domain.Imported(created.ID)
		out.Warnings = warnings
		return out, nil
	}
	if _, throttled := domain.IsRateLimit(err); throttled {
		return domain.Outcome{}, err
	}

	r.logger.Debug("create rejected, looking up existing user",
		zap.String("source_id", u.ID),
		zap.Error(err))

	matches, lookupErr := r.identity.ListUsersByEmail(ctx, u.PrimaryEmail())
	if lookupErr != nil {
		return domain.Outcome{}, lookupErr
	}
	if len(matches) == 0 {
		return domain.Failed(domain.ErrNoMatch.Error()), nil
	}
	if len(matches) > 1 {
		return domain.Failed(domain.ErrAmbiguousMatch.Error()), nil
	}
	existing := matches[0]

	warnings := 0
	if u.PasswordDigest != "" {
		if _, uerr := r.identity.UpdateUser(ctx, existing.ID, domain.UpdateUserParams{
			PasswordDigest: u.PasswordDigest,
			PasswordHasher: u.PasswordHasher,
		}); uerr != nil {
			if _, throttled := domain.IsRateLimit(uerr); throttled {
				return domain.Outcome{}, uerr
			}
			warnings++
			r.logger.Warn("password update failed for existing user",
				zap.String("source_id", u.ID),
				zap.String("remote_user_id", existing.ID),
				zap.Error(uerr))
		}
	}

	verifyWarnings, verr := r.applyVerification(ctx, u, existing.ID)
	if verr != nil {
		return domain.Outcome{}, verr
	}

	out := domain.Imported(existing.ID)
	out.Warnings = warnings + verifyWarnings
	return out, nil
}

// applyVerification marks the primary email verified when the mode asks for
// it. A failure is a soft warning: logged, counted, never fatal to the record.
func (r *Reconciler) applyVerification(ctx context.Context, u domain.User, remoteUserID string) (int, error) {
	if !r.shouldVerify(u) {
		return 0, nil
	}

	verified := true
	if _, err := r.identity.UpdateUser(ctx, remoteUserID, domain.UpdateUserParams{EmailVerified: &verified}); err != nil {
		if _, throttled := domain.IsRateLimit(err); throttled {
			return 0, err
		}
		r.logger.Warn("email verification failed",
			zap.String("source_id", u.ID),
			zap.String("remote_user_id", remoteUserID),
			zap.Error(err))
		return 1, nil
	}
	return 0, nil
}

func (r *Reconciler) shouldVerify(u domain.User) bool {
	switch r.verifiedMode {
	case VerifyAlways:
		return true
	case VerifyFromCSV:
		return u.PrimaryEmailVerified != nil && *u.PrimaryEmailVerified
	default:
		return false
	}
}
