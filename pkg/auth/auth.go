// Package auth implements the gated signup/login flow. Credential
// verification itself belongs to the external identity provider; this
// package owns attempt gating and email uniqueness.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
	"fieldnotes/pkg/models"
	"fieldnotes/pkg/rategate"
	"fieldnotes/pkg/utils"
)

// ErrRateLimited is returned when the subject has exhausted its login
// attempts. Callers surface it distinctly from generic failures so the
// user sees "try again later" rather than "server error".
var ErrRateLimited = errors.New("auth: too many attempts")

// ErrEmailTaken is returned when a signup email is already registered.
var ErrEmailTaken = errors.New("auth: email already registered")

// ErrInvalidCredentials is returned for a failed credential check. The
// failed attempt stays counted against the subject's gate.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// CredentialChecker is the external identity collaborator: it reports
// whether (email, secret) verify.
type CredentialChecker func(ctx context.Context, email, secret string) (bool, error)

// Service runs the signup and login flows.
type Service struct {
	kv       kv.Store
	gate     *rategate.Gate
	limiters *limiterPool
	verify   CredentialChecker
	now      func() time.Time
}

// NewService wires the auth flow over its collaborators.
func NewService(store kv.Store, gate *rategate.Gate, lim LimiterConfig, verify CredentialChecker) *Service {
	return &Service{
		kv:       store,
		gate:     gate,
		limiters: &limiterPool{cfg: lim},
		verify:   verify,
		now:      time.Now,
	}
}

// Signup registers a new account. Email uniqueness is enforced with a
// set-if-absent write on the email key rather than a separate
// read-then-write, so concurrent signups for the same address cannot
// both succeed.
func (s *Service) Signup(ctx context.Context, email, name string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("invalid email: %q", email)
	}
	u := models.User{
		ID:        utils.GenID(),
		Email:     email,
		Name:      name,
		CreatedTS: s.now().UTC().UnixNano(),
	}
	data, err := json.Marshal(u)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to marshal user: %w", err)
	}
	ok, err := s.kv.SetNX(ctx, keys.UserByEmail(email), data, 0)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrEmailTaken
	}
	logger.Info("user_signed_up", "user", u.ID)
	return u, nil
}

// Login runs one gated login attempt for subject (typically the client
// IP). The in-process limiter sheds bursts before the counter store is
// touched; the KV-backed gate then counts the attempt. A successful
// login resets the subject's gate so earlier failures stop counting
// against it.
func (s *Service) Login(ctx context.Context, subject, email, secret string) (models.User, error) {
	if !s.limiters.Allow(subject) {
		logger.Warn("login_burst_shed", "subject", subject)
		return models.User{}, ErrRateLimited
	}

	d, err := s.gate.Admit(ctx, subject)
	if err != nil {
		// the gate already applied its failure policy; honor it
		if !d.Allowed {
			return models.User{}, fmt.Errorf("login gate unavailable: %w", err)
		}
		logger.Warn("login_gate_degraded", "subject", subject, "error", err)
	} else if !d.Allowed {
		logger.Warn("login_rate_limited", "subject", subject)
		return models.User{}, ErrRateLimited
	}

	ok, err := s.verify(ctx, email, secret)
	if err != nil {
		return models.User{}, fmt.Errorf("credential check failed: %w", err)
	}
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}

	if err := s.gate.Reset(ctx, subject); err != nil {
		// login succeeded; a stale counter only costs headroom
		logger.Warn("login_gate_reset_failed", "subject", subject, "error", err)
	}

	u, found, err := s.Lookup(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	if !found {
		return models.User{}, fmt.Errorf("no account for verified email")
	}
	logger.Info("user_logged_in", "user", u.ID)
	return u, nil
}

// Lookup returns the account registered for an email, if any.
func (s *Service) Lookup(ctx context.Context, email string) (models.User, bool, error) {
	raw, err := s.kv.Get(ctx, keys.UserByEmail(email))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return models.User{}, false, fmt.Errorf("corrupt user record: %w", err)
	}
	return u, true, nil
}
