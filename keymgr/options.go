package keymgr

import (
	"log/slog"
	"time"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/notify"
	"github.com/sanctumkit/sanctum/storage"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets the monitoring collaborator.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithProfileStore injects a durable profile store. Profile changes are
// written through; lookups fall back to the store on a cache miss.
func WithProfileStore(s storage.ProfileStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithAuthenticator injects the platform biometric verifier.
func WithAuthenticator(a Authenticator) Option {
	return func(m *Manager) { m.auth = a }
}

// WithSweepInterval overrides the background sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithAccessLogCap overrides the audit ring-buffer capacity.
func WithAccessLogCap(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.accessLogCap = n
		}
	}
}

// WithIterations overrides the PBKDF2 iteration count assigned to newly
// created profiles.
func WithIterations(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.defaultIterations = n
		}
	}
}

type createProfileConfig struct {
	emergency storage.EmergencyConfig
	recovery  *storage.RecoveryConfig
}

// CreateProfileOption configures profile enrollment.
type CreateProfileOption func(*createProfileConfig)

// WithEmergencyAccess enables delayed-release emergency access and names the
// contacts allowed to request it.
func WithEmergencyAccess(contacts ...string) CreateProfileOption {
	return func(c *createProfileConfig) {
		c.emergency.Enabled = true
		c.emergency.Contacts = append([]string(nil), contacts...)
	}
}

// WithEmergencyDelayHours overrides the release delay for emergency access.
func WithEmergencyDelayHours(h int) CreateProfileOption {
	return func(c *createProfileConfig) {
		if h > 0 {
			c.emergency.DelayHours = h
		}
	}
}

// WithAutoGrantLevel sets the severity at or above which an emergency request
// is granted without waiting out the delay.
func WithAutoGrantLevel(l crisis.EmergencyLevel) CreateProfileOption {
	return func(c *createProfileConfig) { c.emergency.AutoGrantLevel = string(l) }
}

// WithRecoveryHint stores a user-chosen recovery hint with the profile. The
// hint is plaintext policy data, never a credential.
func WithRecoveryHint(hint string) CreateProfileOption {
	return func(c *createProfileConfig) {
		c.recovery = &storage.RecoveryConfig{Enabled: true, Hint: hint}
	}
}

type authConfig struct {
	level    crisis.EmergencyLevel
	duration time.Duration
}

// AuthOption configures one authentication attempt.
type AuthOption func(*authConfig)

// WithEmergencyLevel tags the authentication with the urgency of the
// interaction. High and critical levels get the fast-path derivation and the
// extended session lifetime.
func WithEmergencyLevel(l crisis.EmergencyLevel) AuthOption {
	return func(c *authConfig) { c.level = l }
}

// WithSessionDuration overrides the level-based session lifetime for this
// authentication.
func WithSessionDuration(d time.Duration) AuthOption {
	return func(c *authConfig) {
		if d > 0 {
			c.duration = d
		}
	}
}
