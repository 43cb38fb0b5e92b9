package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/authsvc"
	"github.com/clawdesk/clawbench/internal/errs"
)

// fakeAuth is a minimal authsvc.Service double, exercising only Authenticate
// since that is the single method requireAuth calls.
type fakeAuth struct {
	userID string
	err    error
}

func (f *fakeAuth) Register(ctx context.Context, email, password string) (*authsvc.User, error) {
	return nil, errs.New(errs.Internal, "not implemented")
}
func (f *fakeAuth) Login(ctx context.Context, email, password string) (*authsvc.TokenPair, error) {
	return nil, errs.New(errs.Internal, "not implemented")
}
func (f *fakeAuth) Refresh(ctx context.Context, presented string) (*authsvc.TokenPair, error) {
	return nil, errs.New(errs.Internal, "not implemented")
}
func (f *fakeAuth) Logout(ctx context.Context, presented string) error { return nil }
func (f *fakeAuth) Authenticate(ctx context.Context, accessToken string) (string, error) {
	return f.userID, f.err
}
func (f *fakeAuth) GetUser(ctx context.Context, userID string) (*authsvc.User, error) {
	return nil, errs.New(errs.Internal, "not implemented")
}

var _ authsvc.Service = (*fakeAuth)(nil)

func TestRequireAuth_MissingTokenIs401(t *testing.T) {
	s := &Server{deps: Deps{Auth: &fakeAuth{}}}
	called := false
	h := s.requireAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/workspaces", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_InvalidTokenPropagatesErrorStatus(t *testing.T) {
	s := &Server{deps: Deps{Auth: &fakeAuth{err: errs.New(errs.InvalidToken, "bad token")}}}
	h := s.requireAuth(func(w http.ResponseWriter, r *http.Request) {})

	r := httptest.NewRequest(http.MethodGet, "/workspaces", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	h(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidTokenStashesUserIDInContext(t *testing.T) {
	s := &Server{deps: Deps{Auth: &fakeAuth{userID: "user-123"}}}
	var gotUserID string
	h := s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = userIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/workspaces", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	h(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-123", gotUserID)
}
