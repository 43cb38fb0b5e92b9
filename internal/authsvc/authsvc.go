// Package authsvc is the minimal, Postgres-backed user registration,
// password hashing, and login/refresh-token lifecycle collaborator,
// present here only so
// the HTTP boundary and the Chat Actor have a concrete authenticated-
// request path to exercise end to end, not because the CRUD itself is in
// scope.
package authsvc

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/clawdesk/clawbench/internal/errs"
)

// User is the account record behind a session; workspace membership and
// roles are workspacesvc's concern, not this package's.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenPair is what Login and Refresh hand back to the HTTP boundary for
// both the JSON body and the HttpOnly cookie pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service is the named interface the HTTP boundary and nothing else talks
// to for authentication.
type Service interface {
	Register(ctx context.Context, email, password string) (*User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, presentedRefreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, presentedRefreshToken string) error
	// Authenticate verifies a bearer access token and returns the user id
	// it was issued for. It never touches the database: the whole point of
	// a short-lived signed access token is that it is self-verifying.
	Authenticate(ctx context.Context, accessToken string) (string, error)
	GetUser(ctx context.Context, userID string) (*User, error)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, so issueTokenPair
// can run standalone (Login) or inside an existing rotation tx (Refresh).
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGService is the Postgres-backed Service.
type PGService struct {
	pool *pgxpool.Pool

	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewPGService builds a PGService. secret signs access tokens and HMACs
// presented refresh tokens; it must be the same value across process
// restarts or every outstanding token is invalidated.
func NewPGService(pool *pgxpool.Pool, secret string, accessTTL, refreshTTL time.Duration) *PGService {
	return &PGService{pool: pool, secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

var _ Service = (*PGService)(nil)

func (s *PGService) Register(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, errs.New(errs.Validation, "email is required")
	}
	if len(password) < 8 {
		return nil, errs.New(errs.Validation, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("authsvc: hash password: %w", err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		id, email, string(hash), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.New(errs.AlreadyExists, "an account with that email already exists")
		}
		return nil, fmt.Errorf("authsvc: insert user: %w", err)
	}

	return &User{ID: id, Email: email, PasswordHash: string(hash), CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PGService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := s.getUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		// Same error for unknown email and wrong password: never let a
		// caller distinguish "no such account" from "bad password".
		return nil, errs.New(errs.Authentication, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errs.New(errs.Authentication, "invalid email or password")
	}
	return s.issueTokenPair(ctx, s.pool, u.ID)
}

func (s *PGService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	hashHex, verr := verifyPresentedRefreshToken(s.secret, presented)
	if verr != nil {
		return nil, verr
	}

	var (
		id        string
		userID    string
		expiresAt time.Time
		revokedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = $1`,
		hashHex).Scan(&id, &userID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.InvalidToken, "refresh token not recognized")
		}
		return nil, fmt.Errorf("authsvc: lookup refresh token: %w", err)
	}
	if revokedAt != nil {
		return nil, errs.New(errs.SessionExpired, "refresh token has been revoked")
	}
	if time.Now().After(expiresAt) {
		return nil, errs.New(errs.SessionExpired, "refresh token has expired")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("authsvc: begin refresh tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("authsvc: revoke refresh token: %w", err)
	}
	pair, err := s.issueTokenPair(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("authsvc: commit refresh rotation: %w", err)
	}
	return pair, nil
}

func (s *PGService) Logout(ctx context.Context, presented string) error {
	hashHex, verr := verifyPresentedRefreshToken(s.secret, presented)
	if verr != nil {
		// Logging out with a malformed or already-dead token is a no-op
		// success: the client's intent (no longer wants this session) is
		// already satisfied.
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, hashHex)
	if err != nil {
		return fmt.Errorf("authsvc: revoke on logout: %w", err)
	}
	return nil
}

func (s *PGService) Authenticate(_ context.Context, accessToken string) (string, error) {
	userID, err := parseAccessToken(s.secret, accessToken)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PGService) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "user not found")
		}
		return nil, fmt.Errorf("authsvc: get user: %w", err)
	}
	return &u, nil
}

func (s *PGService) getUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "user not found")
		}
		return nil, fmt.Errorf("authsvc: get user by email: %w", err)
	}
	return &u, nil
}

func (s *PGService) issueTokenPair(ctx context.Context, q execer, userID string) (*TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(s.accessTTL)
	access := signAccessToken(s.secret, userID, accessExp)

	presented, hashHex, err := newRefreshToken(s.secret)
	if err != nil {
		return nil, fmt.Errorf("authsvc: generate refresh token: %w", err)
	}
	refreshExp := now.Add(s.refreshTTL)

	id := uuid.Must(uuid.NewV7()).String()
	_, err = q.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, userID, hashHex, refreshExp, now)
	if err != nil {
		return nil, fmt.Errorf("authsvc: store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     presented,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- token encoding -------------------------------------------------------
//
// Access tokens are "userID:expiryUnix" base64url-encoded, dot-joined with
// a hex HMAC-SHA256 of the encoded payload — short-lived and fully
// self-verifying, no DB round trip.
//
// Refresh tokens are a random 32-byte value, presented as its base64url
// encoding dot-joined with a hex HMAC of that encoding, so a guessed or
// tampered value fails the signature check before ever reaching the
// database. What is stored at rest is the
// SHA-256 hash of the raw random bytes, never the value itself.

func hmacHex(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func signAccessToken(secret []byte, userID string, expiresAt time.Time) string {
	payload := userID + ":" + strconv.FormatInt(expiresAt.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + hmacHex(secret, encoded)
}

func parseAccessToken(secret []byte, token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errs.New(errs.InvalidToken, "malformed access token")
	}
	if !hmac.Equal([]byte(hmacHex(secret, encoded)), []byte(sig)) {
		return "", errs.New(errs.InvalidToken, "access token signature mismatch")
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.New(errs.InvalidToken, "malformed access token")
	}
	userID, expStr, ok := strings.Cut(string(payload), ":")
	if !ok {
		return "", errs.New(errs.InvalidToken, "malformed access token")
	}
	expUnix, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", errs.New(errs.InvalidToken, "malformed access token")
	}
	if time.Now().Unix() > expUnix {
		return "", errs.New(errs.SessionExpired, "access token has expired")
	}
	return userID, nil
}

func newRefreshToken(secret []byte) (presented string, hashHex string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	presented = encoded + "." + hmacHex(secret, encoded)
	sum := sha256.Sum256(raw)
	return presented, hex.EncodeToString(sum[:]), nil
}

func verifyPresentedRefreshToken(secret []byte, presented string) (string, *errs.Error) {
	encoded, sig, ok := strings.Cut(presented, ".")
	if !ok {
		return "", errs.New(errs.InvalidToken, "malformed refresh token")
	}
	if !hmac.Equal([]byte(hmacHex(secret, encoded)), []byte(sig)) {
		return "", errs.New(errs.InvalidToken, "refresh token signature mismatch")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.New(errs.InvalidToken, "malformed refresh token")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
