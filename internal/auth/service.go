// Package auth issues and validates staff access tokens. Staff log in
// with a username and password; the register holds a short-lived HS256
// token for the shift, there are no refresh sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/techhaven/backend-pos/internal/common"
	"github.com/techhaven/backend-pos/internal/store"
)

// Staff roles, from least to most privileged.
const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

const (
	defaultAccessTTL = 8 * time.Hour
	roleClaim        = "role"
)

// Service coordinates staff authentication and token issuance.
type Service struct {
	staff     store.StaffAccounts
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Staff          store.StaffAccounts
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// LoginResult bundles the token material returned after a successful login.
type LoginResult struct {
	Staff        store.Staff `json:"staff"`
	AccessToken  string      `json:"access_token"`
	AccessExpiry time.Time   `json:"access_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Staff == nil {
		return nil, errors.New("auth: staff store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-pos"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "pos-register"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		staff:     cfg.Staff,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a staff account with the supplied credentials.
func (s *Service) Register(ctx context.Context, username, fullName, role, password string) (store.Staff, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return store.Staff{}, common.NewAppError("VALIDATION_ERROR", "username is required", http.StatusBadRequest, nil)
	}
	switch role {
	case RoleCashier, RoleManager, RoleAdmin:
	default:
		return store.Staff{}, common.NewAppError("VALIDATION_ERROR", "role must be cashier, manager, or admin", http.StatusBadRequest, nil)
	}
	if len(password) < 8 {
		return store.Staff{}, common.NewAppError("VALIDATION_ERROR", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return store.Staff{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.staff.CreateStaff(ctx, store.Staff{
		Username:     username,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Staff{}, common.NewAppError("USERNAME_TAKEN", "username is already registered", http.StatusConflict, err)
		}
		return store.Staff{}, fmt.Errorf("create staff: %w", err)
	}
	created.PasswordHash = ""
	return created, nil
}

// Login verifies credentials and issues a fresh access token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized, nil)
	}

	staff, err := s.staff.GetStaffByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized, nil)
	}

	ok, err := argon2id.ComparePasswordAndHash(password, staff.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized, nil)
	}

	token, expiry, err := s.signAccessToken(staff.ID, staff.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	staff.PasswordHash = ""
	return LoginResult{Staff: staff, AccessToken: token, AccessExpiry: expiry}, nil
}

// Me fetches the currently authenticated staff member.
func (s *Service) Me(ctx context.Context, staffID int64) (store.Staff, error) {
	staff, err := s.staff.GetStaff(ctx, staffID)
	if err != nil {
		return store.Staff{}, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, err)
	}
	staff.PasswordHash = ""
	return staff, nil
}

// ParseAccessToken validates an access token and returns the staff ID and role.
func (s *Service) ParseAccessToken(token string) (int64, string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return 0, "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return 0, "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return 0, "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return 0, "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return 0, "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	staffID, err := strconv.ParseInt(parsed.Subject(), 10, 64)
	if err != nil {
		return 0, "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	role := ""
	if raw, ok := parsed.Get(roleClaim); ok {
		role, _ = raw.(string)
	}
	return staffID, role, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(staffID int64, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(strconv.FormatInt(staffID, 10)).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, role)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
