// Package keymgr implements the key lifecycle manager: user key profiles,
// authenticated sessions, key rotation, delayed-release emergency access,
// and the key-access audit trail. It orchestrates the encryption engine.
// A password is never retained beyond the call that receives it; session
// operations run on session-scoped keys held in the engine's enclave table,
// and profiles carry derivation policy, never key material.
package keymgr

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/engine"
	"github.com/sanctumkit/sanctum/internal/util"
	"github.com/sanctumkit/sanctum/notify"
	"github.com/sanctumkit/sanctum/storage"
)

const (
	// DefaultSessionTTL bounds an ordinary authenticated session.
	DefaultSessionTTL = 4 * time.Hour

	// EmergencySessionTTL bounds a session authenticated at high or critical
	// urgency. A person in crisis must not be re-prompted for a password
	// mid-conversation.
	EmergencySessionTTL = 8 * time.Hour

	// AnonymousSessionTTL bounds an anonymous session.
	AnonymousSessionTTL = 12 * time.Hour

	// MinAuthIterations is the floor under the urgent-path derivation
	// discount. Halving never drops the count below this.
	MinAuthIterations = 100_000

	// DefaultEmergencyDelayHours is the release delay applied when a profile
	// enables emergency access without choosing one.
	DefaultEmergencyDelayHours = 24

	// DefaultSweepInterval is the cadence of the background sweep that
	// releases due emergency requests and purges expired sessions.
	DefaultSweepInterval = time.Minute

	// DefaultAccessLogCap bounds the in-memory audit ring.
	DefaultAccessLogCap = 1000
)

// Manager owns key lifecycle state. Construct with New; call Dispose when
// done to stop the background sweep and wipe all in-memory state.
type Manager struct {
	engine   *engine.Engine
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	store    storage.ProfileStore
	auth     Authenticator

	sweepInterval     time.Duration
	accessLogCap      int
	defaultIterations int

	mu       sync.Mutex
	profiles map[string]*UserKeyProfile
	sessions map[string]*SecureSession
	requests map[string]*EmergencyAccessRequest

	logMu     sync.Mutex
	accessLog []AccessLogEntry

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a Manager on top of an initialized engine and starts the
// background sweep.
func New(eng *engine.Engine, opts ...Option) (*Manager, error) {
	if eng == nil {
		return nil, errors.New("keymgr: engine is required")
	}

	m := &Manager{
		engine:            eng,
		notifier:          notify.Nop{},
		logger:            slog.Default(),
		now:               time.Now,
		sweepInterval:     DefaultSweepInterval,
		accessLogCap:      DefaultAccessLogCap,
		defaultIterations: engine.DefaultIterations,
		profiles:          make(map[string]*UserKeyProfile),
		sessions:          make(map[string]*SecureSession),
		requests:          make(map[string]*EmergencyAccessRequest),
		stopCh:            make(chan struct{}),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweepLoop()
	return m, nil
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	defer close(m.done)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep runs one pass of the background maintenance work.
func (m *Manager) sweep() {
	m.ClearExpiredSessions()
	m.releaseDueRequests()
}

// CreateUserProfile enrolls a user: it fixes the derivation policy, runs the
// initial derivation as a capability proof, and records the profile. The
// password itself is never stored in any form.
func (m *Manager) CreateUserProfile(userID, password string, opts ...CreateProfileOption) (*UserKeyProfile, error) {
	if userID == "" || password == "" {
		m.appendLog(userID, "", OpDerived, false, "enrollment rejected")
		return nil, fmt.Errorf("%w: user ID and password are required", crisis.ErrAuthenticationFailed)
	}

	cfg := createProfileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.emergency.Enabled && cfg.emergency.DelayHours == 0 {
		cfg.emergency.DelayHours = DefaultEmergencyDelayHours
	}

	m.mu.Lock()
	if _, err := m.lookupProfileLocked(userID); err == nil {
		m.mu.Unlock()
		m.appendLog(userID, "", OpDerived, false, "profile already exists")
		return nil, fmt.Errorf("%w: %s", crisis.ErrProfileExists, userID)
	}
	m.mu.Unlock()

	params := util.DefaultPBKDF2Params()
	params.Iterations = m.defaultIterations

	salt, err := util.RandomBytes(params.SaltLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}

	profile := &UserKeyProfile{
		UserID:    userID,
		KeyID:     uuid.NewString(),
		Version:   1,
		CreatedAt: m.now().UTC(),
		Derivation: storage.DerivationConfig{
			Hash:       "SHA-256",
			Iterations: params.Iterations,
			SaltLen:    params.SaltLen,
			KeyLen:     params.KeyLen,
			Salt:       salt,
		},
		Recovery:  cfg.recovery,
		Emergency: cfg.emergency,
	}

	if err := m.deriveAndWipe(password, profile.Derivation.Salt, profile.Derivation.Iterations); err != nil {
		m.appendLog(userID, "", OpDerived, false, "initial derivation failed")
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.profiles[userID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", crisis.ErrProfileExists, userID)
	}
	m.profiles[userID] = profile
	m.mu.Unlock()

	if err := m.persistProfile(profile); err != nil {
		return nil, err
	}

	m.appendLog(userID, "", OpDerived, true, "profile created")
	m.logger.Info("user key profile created", "userID", userID, "keyID", profile.KeyID)
	return profile.clone(), nil
}

// AuthenticateUser verifies the password by deriving the user's key under the
// profile's parameters and opens a session. High and critical urgency halves
// the iteration count, never below MinAuthIterations, and extends the session
// lifetime. The derived key is wiped before the call returns.
func (m *Manager) AuthenticateUser(userID, password string, opts ...AuthOption) (*SecureSession, error) {
	cfg := authConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.level != crisis.LevelNone && !validAuthLevel(cfg.level) {
		return nil, fmt.Errorf("%w: unknown emergency level %q", crisis.ErrInvalidContext, cfg.level)
	}

	m.mu.Lock()
	profile, err := m.lookupProfileLocked(userID)
	if err != nil {
		m.mu.Unlock()
		m.appendLog(userID, "", OpDerived, false, "unknown user")
		m.logger.Warn("authentication failed", "userID", userID)
		return nil, crisis.ErrAuthenticationFailed
	}
	salt := append([]byte(nil), profile.Derivation.Salt...)
	iterations := authIterations(profile.Derivation.Iterations, cfg.level)
	keyID := profile.KeyID
	m.mu.Unlock()

	if password == "" {
		m.appendLog(userID, "", OpDerived, false, "empty password")
		return nil, crisis.ErrAuthenticationFailed
	}
	if err := m.deriveAndWipe(password, salt, iterations); err != nil {
		m.appendLog(userID, "", OpDerived, false, "derivation failed")
		m.logger.Warn("authentication failed", "userID", userID)
		return nil, crisis.ErrAuthenticationFailed
	}

	ttl := DefaultSessionTTL
	if cfg.level.Urgent() {
		ttl = EmergencySessionTTL
	}
	if cfg.duration > 0 {
		ttl = cfg.duration
	}

	now := m.now()
	session := &SecureSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		KeyID:          keyID,
		EmergencyLevel: cfg.level,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Iterations:     iterations,
	}

	// The password's role ends here. Session operations run on a fresh
	// random key in the engine's enclave table.
	if err := m.engine.GenerateSessionKey(session.ID); err != nil {
		m.appendLog(userID, "", OpDerived, false, "session key generation failed")
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	var snapshot *UserKeyProfile
	if p, ok := m.profiles[userID]; ok {
		p.LastUsedAt = now.UTC()
		snapshot = p.clone()
	}
	m.mu.Unlock()
	if snapshot != nil {
		if err := m.persistProfile(snapshot); err != nil {
			m.logger.Warn("profile persist failed after authentication", "userID", userID, "err", err)
		}
	}

	m.appendLog(userID, session.ID, OpDerived, true, "authenticated")
	return session.clone(), nil
}

// CreateAnonymousSession opens a session bound to no user identifier, for
// interactions that must stay unlinkable. The session key is random; no
// user credential is involved.
func (m *Manager) CreateAnonymousSession(level crisis.EmergencyLevel) (*SecureSession, error) {
	if level != crisis.LevelNone && !validAuthLevel(level) {
		return nil, fmt.Errorf("%w: unknown emergency level %q", crisis.ErrInvalidContext, level)
	}

	now := m.now()
	session := &SecureSession{
		ID:             "anon-" + uuid.NewString(),
		EmergencyLevel: level,
		Anonymous:      true,
		CreatedAt:      now,
		ExpiresAt:      now.Add(AnonymousSessionTTL),
	}

	if err := m.engine.GenerateSessionKey(session.ID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.appendLog("", session.ID, OpDerived, true, "anonymous session created")
	return session.clone(), nil
}

// GetProfile returns a snapshot of a user's key profile. An unknown user is
// reported through the closed error taxonomy, not the storage layer's.
func (m *Manager) GetProfile(userID string) (*UserKeyProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, err := m.lookupProfileLocked(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown user %s", crisis.ErrAuthenticationFailed, userID)
	}
	return profile.clone(), nil
}

// Dispose stops the background sweep, invalidates all sessions, clears the
// engine's session keys, and drops every profile, request, and audit entry.
func (m *Manager) Dispose() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.done
	})

	m.mu.Lock()
	m.profiles = make(map[string]*UserKeyProfile)
	m.sessions = make(map[string]*SecureSession)
	m.requests = make(map[string]*EmergencyAccessRequest)
	m.mu.Unlock()

	m.logMu.Lock()
	m.accessLog = nil
	m.logMu.Unlock()

	m.engine.ClearSessionKeys()
	m.logger.Info("key lifecycle manager disposed")
}

// lookupProfileLocked resolves a profile from the cache, falling back to the
// injected store. Caller holds m.mu.
func (m *Manager) lookupProfileLocked(userID string) (*UserKeyProfile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, userID)
	}
	rec, err := m.store.Get(userID)
	if err != nil {
		return nil, err
	}
	p := profileFromRecord(rec)
	m.profiles[userID] = p
	return p, nil
}

func (m *Manager) persistProfile(p *UserKeyProfile) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Put(p.toRecord()); err != nil {
		return fmt.Errorf("persisting profile for %s: %w", p.UserID, err)
	}
	return nil
}

// deriveAndWipe runs one PBKDF2 derivation and discards the result. The
// subsystem is zero-knowledge: the derivation itself is the proof of work,
// and a wrong password only ever surfaces later as a generic decryption
// failure.
func (m *Manager) deriveAndWipe(password string, salt []byte, iterations int) error {
	key, err := util.DerivePBKDF2Key(password, salt, util.PBKDF2Params{
		Iterations: iterations,
		SaltLen:    len(salt),
		KeyLen:     util.AESKeySize,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", crisis.ErrInvalidDerivationConfig, err)
	}
	util.WipeBytes(key)
	return nil
}

// authIterations applies the urgent-path discount: halve, but never below
// MinAuthIterations.
func authIterations(profileIterations int, level crisis.EmergencyLevel) int {
	if !level.Urgent() {
		return profileIterations
	}
	halved := profileIterations / 2
	if halved < MinAuthIterations {
		halved = MinAuthIterations
	}
	return halved
}

func validAuthLevel(l crisis.EmergencyLevel) bool {
	switch l {
	case crisis.LevelLow, crisis.LevelMedium, crisis.LevelHigh, crisis.LevelCritical:
		return true
	}
	return false
}

func (m *Manager) emit(name string, meta map[string]string) {
	m.notifier.Emit(notify.Event{Name: name, Time: m.now(), Meta: meta})
}
