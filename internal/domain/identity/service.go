package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/crypto"
)

const (
	mfaCodeLength = 6
	mfaCodeTTL    = 10 * time.Minute

	refreshTokenBytes = 32
)

// MFASender delivers a login challenge out of band (SMS, email). The
// in-process default just drops it; wiring a real channel is deployment
// configuration.
type MFASender interface {
	SendCode(ctx context.Context, u *User, code string) error
}

type noopSender struct{}

func (noopSender) SendCode(context.Context, *User, string) error { return nil }

// Service owns account registration and the login flow, including the MFA
// handshake and refresh token rotation.
type Service struct {
	users    UserRepository
	refresh  RefreshTokenRepository
	mfaCodes MFACodeRepository
	tokens   *TokenService
	engine   *crypto.Engine
	sender   MFASender
	clock    func() time.Time
}

func NewService(users UserRepository, refresh RefreshTokenRepository, mfaCodes MFACodeRepository, tokens *TokenService, engine *crypto.Engine) *Service {
	return &Service{
		users:    users,
		refresh:  refresh,
		mfaCodes: mfaCodes,
		tokens:   tokens,
		engine:   engine,
		sender:   noopSender{},
		clock:    time.Now,
	}
}

// WithSender installs an out-of-band MFA delivery channel.
func (s *Service) WithSender(sender MFASender) *Service {
	s.sender = sender
	return s
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// LoginResult is what a successful credential exchange produces. Exactly one
// of AccessToken or TemporaryToken is set; MFARequired tells the client which.
type LoginResult struct {
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TemporaryToken string `json:"temporary_token,omitempty"`
	MFARequired    bool   `json:"mfa_required"`
}

// Register creates an account. The CPF is stored encrypted alongside a
// deterministic digest for duplicate detection.
func (s *Service) Register(ctx context.Context, email, password, fullName, cpf string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.BadRequest("a valid email is required")
	}
	if len(password) < 8 {
		return nil, apperr.BadRequest("password must be at least 8 characters")
	}
	if cpf == "" {
		return nil, apperr.BadRequest("cpf is required")
	}

	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Conflict("an account with this email already exists")
	}

	cpfHash := crypto.HashForLookup(cpf)
	if existing, err := s.users.GetByCPFHash(ctx, cpfHash); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Conflict("an account with this cpf already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Crypto("hashing password", err)
	}
	cpfEncrypted, err := s.engine.Encrypt(cpf)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        email,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		CPFEncrypted: cpfEncrypted,
		CPFHash:      cpfHash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies the password. Accounts with MFA enabled get a temporary
// credential and an out-of-band code instead of an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	// Same failure for unknown email and wrong password.
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	if u.MFAEnabled {
		if err := s.issueMFAChallenge(ctx, u); err != nil {
			return nil, err
		}
		temp, err := s.tokens.IssueTemporary(u)
		if err != nil {
			return nil, err
		}
		return &LoginResult{TemporaryToken: temp, MFARequired: true}, nil
	}
	return s.issueSession(ctx, u)
}

// CompleteMFA exchanges a valid challenge code for a full session. The caller
// is the principal a temporary credential authenticated.
func (s *Service) CompleteMFA(ctx context.Context, userID uuid.UUID, code string) (*LoginResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Unauthenticated("account not found")
	}

	ok, err := s.mfaCodes.Consume(ctx, userID, hashToken(code), s.clock())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthenticated("invalid or expired code")
	}
	return s.issueSession(ctx, u)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	stored, err := s.refresh.GetByHash(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if stored == nil || stored.RevokedAt != nil || now.After(stored.ExpiresAt) {
		return nil, apperr.Unauthenticated("invalid or expired refresh token")
	}

	u, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Unauthenticated("account not found")
	}

	if err := s.refresh.Revoke(ctx, stored.ID, now); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, u)
}

// Logout revokes every refresh token the user holds. Outstanding access
// tokens expire on their own within AccessTokenTTL.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.refresh.RevokeAllForUser(ctx, userID, s.clock())
}

// SetMFAEnabled toggles the MFA requirement on the account.
func (s *Service) SetMFAEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	return s.users.SetMFAEnabled(ctx, userID, enabled)
}

// ChangePassword verifies the current password before accepting a new one,
// then ends every other session.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.NotFound("account not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.Unauthenticated("current password is incorrect")
	}
	if len(next) < 8 {
		return apperr.BadRequest("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Crypto("hashing password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	return s.refresh.RevokeAllForUser(ctx, userID, s.clock())
}

// CPF decrypts the user's stored document number.
func (s *Service) CPF(ctx context.Context, userID uuid.UUID) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", apperr.NotFound("account not found")
	}
	return s.engine.Decrypt(u.CPFEncrypted)
}

func (s *Service) issueSession(ctx context.Context, u *User) (*LoginResult, error) {
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}

	raw, err := crypto.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Create(ctx, &RefreshToken{
		UserID:    u.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: s.clock().Add(RefreshTokenTTL),
	}); err != nil {
		return nil, err
	}

	return &LoginResult{AccessToken: access, RefreshToken: raw}, nil
}

func (s *Service) issueMFAChallenge(ctx context.Context, u *User) error {
	code, err := crypto.RandomNumericCode(mfaCodeLength)
	if err != nil {
		return err
	}
	if err := s.mfaCodes.Create(ctx, &MFACode{
		UserID:    u.ID,
		CodeHash:  hashToken(code),
		ExpiresAt: s.clock().Add(mfaCodeTTL),
	}); err != nil {
		return err
	}
	return s.sender.SendCode(ctx, u, code)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
