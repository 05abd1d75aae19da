package app

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"flowboard/api/internal/store"
)

func TestSignUpThenSignIn(t *testing.T) {
	var saved store.User
	st := &fakeStore{
		insertUserFn: func(_ context.Context, u store.User) error {
			saved = u
			return nil
		},
	}
	st.getUserByEmailFn = func(_ context.Context, email string) (store.User, error) {
		if email == saved.Email {
			return saved, nil
		}
		return store.User{}, store.ErrNotFound
	}
	svc := newTestService(st, &fakeHub{})

	result, err := svc.SignUp(context.Background(), "Ada", "Ada@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if saved.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", saved.Email)
	}
	if saved.PasswordHash == "correct horse" {
		t.Fatal("password stored in clear")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("token pair missing")
	}

	signedIn, err := svc.SignIn(context.Background(), "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if signedIn.User.ID != saved.ID {
		t.Fatalf("user = %+v", signedIn.User)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	st := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "u1", PasswordHash: string(hash)}, nil
		},
	}
	svc := newTestService(st, &fakeHub{})

	_, err := svc.SignIn(context.Background(), "ada@example.com", "wrong")
	var domain *DomainError
	if !errors.As(err, &domain) || domain.Status != 401 {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestSignInUnknownEmailSameAnswer(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeHub{})

	_, err := svc.SignIn(context.Background(), "ghost@example.com", "whatever")
	var domain *DomainError
	if !errors.As(err, &domain) || domain.Status != 401 || domain.Message != "Invalid email or password" {
		t.Fatalf("unknown email leaked: %v", err)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	st := &fakeStore{
		insertUserFn: func(context.Context, store.User) error {
			return store.ErrDuplicate
		},
	}
	svc := newTestService(st, &fakeHub{})

	_, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "correct horse")
	var domain *DomainError
	if !errors.As(err, &domain) || domain.Status != 409 {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestSignUpRejectsWeakInput(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeHub{})
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "", "ada@example.com", "correct horse"); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := svc.SignUp(ctx, "Ada", "not-an-email", "correct horse"); err == nil {
		t.Fatal("bad email accepted")
	}
	if _, err := svc.SignUp(ctx, "Ada", "ada@example.com", "short"); err == nil {
		t.Fatal("short password accepted")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	st := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, Name: "Ada", Email: "ada@example.com"}, nil
		},
	}
	sessions := newFakeSessions()
	svc := New(testConfig(), st, sessions, &fakeHub{}, nil, nil)

	first, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// Replaying the consumed token must fail.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("replayed refresh token accepted")
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	sessions := newFakeSessions()
	svc := New(testConfig(), &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id}, nil
		},
	}, sessions, &fakeHub{}, nil, nil)

	result, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := svc.Logout(context.Background(), result.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), result.RefreshToken); err == nil {
		t.Fatal("refresh after logout accepted")
	}
}

func TestSessionFromTokenRoundTrip(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeHub{})

	result, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	sess, err := svc.SessionFromToken(result.AccessToken)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if sess.UserID != result.User.ID || sess.UserName != "Ada" || sess.JTI == "" {
		t.Fatalf("session = %+v", sess)
	}

	if _, err := svc.SessionFromToken("garbage"); err == nil {
		t.Fatal("garbage token accepted")
	}
}
