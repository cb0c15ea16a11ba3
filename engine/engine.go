// Package engine implements the stateless-per-call encryption engine: it
// turns a password and a context into an authenticated ciphertext envelope
// and back, and manages ephemeral session keys and key-exchange pairs. The
// engine has no notion of users or sessions beyond the opaque session IDs
// that scope its key cache; that orchestration belongs to keymgr.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/internal/util"
	"github.com/sanctumkit/sanctum/notify"
)

const (
	// DefaultIterations is the PBKDF2 baseline (OWASP 2023 guidance).
	DefaultIterations = 600_000

	// CriticalIterations is the floor applied when the context severity is
	// critical. Critical data gets stronger derivation, not weaker: its
	// confidentiality stakes are highest, and the UI masks the latency.
	CriticalIterations = 800_000

	selfTestIterations = 1_000
)

// Engine wraps the host's cryptographic primitives behind one fixed envelope
// format and one key-derivation policy. Construct with New, then call
// Initialize before any other operation.
type Engine struct {
	mu          sync.RWMutex
	initialized bool

	iterations         int
	criticalIterations int
	notifier           notify.Notifier
	logger             *slog.Logger
	now                func() time.Time

	skMu        sync.RWMutex
	sessionKeys map[string]*memguard.Enclave
}

// Option configures an Engine.
type Option func(*Engine)

// WithIterations overrides the default PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(e *Engine) { e.iterations = n }
}

// WithCriticalIterations overrides the iteration floor for critical severity.
func WithCriticalIterations(n int) Option {
	return func(e *Engine) { e.criticalIterations = n }
}

// WithNotifier sets the monitoring collaborator.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an uninitialized Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		iterations:         DefaultIterations,
		criticalIterations: CriticalIterations,
		notifier:           notify.Nop{},
		logger:             slog.Default(),
		now:                time.Now,
		sessionKeys:        make(map[string]*memguard.Enclave),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize verifies the host exposes the required primitives by running a
// full derive-encrypt-decrypt self-test. It must complete before any other
// operation; a failure is fatal and wraps crisis.ErrCapability.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}

	if err := e.selfTest(); err != nil {
		e.logger.Error("encryption self-test failed", "err", err)
		return fmt.Errorf("%w: %v", crisis.ErrCapability, err)
	}

	e.initialized = true
	e.emit(notify.EventInitialized, map[string]string{
		"algorithm":     crisis.AlgorithmAES256GCM,
		"keyDerivation": crisis.KeyDerivationPBKDF2,
	})
	e.logger.Info("encryption engine initialized",
		"algorithm", crisis.AlgorithmAES256GCM,
		"keyDerivation", crisis.KeyDerivationPBKDF2)
	return nil
}

func (e *Engine) selfTest() error {
	salt, err := util.RandomBytes(crisis.SaltSize)
	if err != nil {
		return err
	}
	iv, err := util.RandomBytes(crisis.IVSize)
	if err != nil {
		return err
	}

	params := util.PBKDF2Params{Iterations: selfTestIterations, SaltLen: crisis.SaltSize, KeyLen: util.AESKeySize}
	key, err := util.DerivePBKDF2Key("self-test-password", salt, params)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)

	known := []byte("sanctum-self-test")
	cipherText, tag, err := util.SealAESGCM(known, key, iv)
	if err != nil {
		return err
	}
	plainText, err := util.OpenAESGCM(cipherText, tag, key, iv)
	if err != nil {
		return err
	}
	if !bytes.Equal(known, plainText) {
		return fmt.Errorf("self-test round trip mismatch")
	}
	return nil
}

func (e *Engine) requireInit() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return fmt.Errorf("%w: engine not initialized", crisis.ErrCapability)
	}
	return nil
}

// iterationsFor computes the derivation strength for a context. Critical
// severity raises the count to at least CriticalIterations; it never lowers.
func (e *Engine) iterationsFor(cctx crisis.Context) int {
	if cctx.EmergencyLevel == crisis.LevelCritical && e.iterations < e.criticalIterations {
		return e.criticalIterations
	}
	return e.iterations
}

// Encrypt derives a fresh key from the password and a random salt, then
// seals the plaintext into a self-describing envelope. For critical-severity
// contexts the envelope is round-trip validated before being returned; a
// mismatch there is an encryption-path failure, not a caller error.
func (e *Engine) Encrypt(data []byte, password string, cctx crisis.Context) (*crisis.Envelope, error) {
	env, err := e.encrypt(data, password, cctx)
	if err != nil {
		e.emit(notify.EventEncryptionError, map[string]string{
			"dataType": string(cctx.DataType),
			"level":    string(cctx.EmergencyLevel),
		})
		e.logger.Error("encryption failed", "dataType", cctx.DataType, "err", err)
		return nil, err
	}

	e.emit(notify.EventDataEncrypted, map[string]string{
		"dataType":   string(cctx.DataType),
		"level":      string(cctx.EmergencyLevel),
		"anonymous":  strconv.FormatBool(cctx.Anonymous),
		"iterations": strconv.Itoa(env.Iterations),
	})
	return env, nil
}

func (e *Engine) encrypt(data []byte, password string, cctx crisis.Context) (*crisis.Envelope, error) {
	if err := e.requireInit(); err != nil {
		return nil, err
	}
	if err := cctx.Validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: plaintext must not be empty", crisis.ErrEncryptionFailed)
	}

	salt, err := util.RandomBytes(crisis.SaltSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}
	iv, err := util.RandomBytes(crisis.IVSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}

	iterations := e.iterationsFor(cctx)
	key, err := util.DerivePBKDF2Key(password, salt, util.PBKDF2Params{
		Iterations: iterations,
		SaltLen:    crisis.SaltSize,
		KeyLen:     util.AESKeySize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrInvalidDerivationConfig, err)
	}
	defer util.WipeBytes(key)

	cipherText, tag, err := util.SealAESGCM(data, key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}

	env := &crisis.Envelope{
		Data:          cipherText,
		IV:            iv,
		Salt:          salt,
		Tag:           tag,
		Algorithm:     crisis.AlgorithmAES256GCM,
		KeyDerivation: crisis.KeyDerivationPBKDF2,
		Iterations:    iterations,
		Timestamp:     e.now().UnixMilli(),
	}

	// Mandatory round-trip self-validation for critical-severity data.
	if cctx.EmergencyLevel == crisis.LevelCritical {
		plainText, err := e.open(env, password)
		if err != nil || !bytes.Equal(plainText, data) {
			return nil, fmt.Errorf("%w: critical round-trip validation failed", crisis.ErrEncryptionFailed)
		}
	}

	return env, nil
}

// EncryptJSON canonically serializes a structured value and encrypts it.
func (e *Engine) EncryptJSON(v any, password string, cctx crisis.Context) (*crisis.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: serializing payload: %v", crisis.ErrEncryptionFailed, err)
	}
	return e.Encrypt(data, password, cctx)
}

// Decrypt validates envelope structure, re-derives the key using the salt and
// iteration count stored in the envelope, and opens the ciphertext. A wrong
// password and tampered data surface as the same generic failure.
func (e *Engine) Decrypt(env *crisis.Envelope, password string, cctx crisis.Context) ([]byte, error) {
	if err := e.requireInit(); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := cctx.Validate(); err != nil {
		return nil, err
	}

	plainText, err := e.open(env, password)
	if err != nil {
		e.emit(notify.EventDecryptionError, map[string]string{
			"dataType": string(cctx.DataType),
			"level":    string(cctx.EmergencyLevel),
		})
		e.logger.Warn("decryption failed", "dataType", cctx.DataType)
		return nil, crisis.ErrDecryptionFailed
	}

	e.emit(notify.EventDataDecrypted, map[string]string{
		"dataType": string(cctx.DataType),
		"level":    string(cctx.EmergencyLevel),
	})
	return plainText, nil
}

// open re-derives the key from envelope parameters and opens the ciphertext.
// Derivation failures and tag mismatches are deliberately not distinguished.
func (e *Engine) open(env *crisis.Envelope, password string) ([]byte, error) {
	key, err := util.DerivePBKDF2Key(password, env.Salt, util.PBKDF2Params{
		Iterations: env.Iterations,
		SaltLen:    len(env.Salt),
		KeyLen:     util.AESKeySize,
	})
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)

	return util.OpenAESGCM(env.Data, env.Tag, key, env.IV)
}

func (e *Engine) emit(name string, meta map[string]string) {
	e.notifier.Emit(notify.Event{Name: name, Time: e.now(), Meta: meta})
}
