package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"flowboard/api/internal/store"
)

func newTestServer(t *testing.T, st *fakeStore) (*echo.Echo, *Service) {
	t.Helper()
	svc := newTestService(st, &fakeHub{})
	e := echo.New()
	NewHTTPServer(svc, nil, "*", nil).Register(e)
	return e, svc
}

func doJSON(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t, &fakeStore{})
	rec := doJSON(e, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	e, _ := newTestServer(t, &fakeStore{})
	rec := doJSON(e, http.MethodGet, "/api/boards", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestSignUpAndCreateBoardFlow(t *testing.T) {
	var boards []store.Board
	st := &fakeStore{
		insertBoardFn: func(_ context.Context, b store.Board) (store.Board, error) {
			boards = append(boards, b)
			return b, nil
		},
	}
	st.listBoardsFn = func(context.Context, string) ([]store.Board, error) {
		return boards, nil
	}
	e, _ := newTestServer(t, st)

	rec := doJSON(e, http.MethodPost, "/api/auth/signup", "",
		`{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rec.Code, rec.Body.String())
	}
	var auth AuthResult
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("signup envelope = %+v", env)
	}
	if err := json.Unmarshal(env.Data, &auth); err != nil {
		t.Fatalf("decode auth: %v", err)
	}

	rec = doJSON(e, http.MethodPost, "/api/boards", auth.AccessToken, `{"title":"Launch"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create board status = %d body=%s", rec.Code, rec.Body.String())
	}
	env = decodeEnvelope(t, rec)
	var board BoardDTO
	if err := json.Unmarshal(env.Data, &board); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if board.Title != "Launch" || board.OwnerID != auth.User.ID {
		t.Fatalf("board = %+v", board)
	}

	rec = doJSON(e, http.MethodGet, "/api/boards", auth.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list boards status = %d", rec.Code)
	}
}

func TestStoreSentinelMapsToEnvelope(t *testing.T) {
	st := &fakeStore{
		getMemberRoleFn: func(context.Context, string, string) (string, error) {
			return "member", nil
		},
		boardIDForTaskFn: func(context.Context, string) (string, error) {
			return "", store.ErrNotFound
		},
	}
	e, svc := newTestServer(t, st)

	result, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	rec := doJSON(e, http.MethodGet, "/api/tasks/missing", result.AccessToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestMoveTaskRequiresPosition(t *testing.T) {
	st := &fakeStore{
		getMemberRoleFn: func(context.Context, string, string) (string, error) {
			return "member", nil
		},
		boardIDForTaskFn: func(context.Context, string) (string, error) {
			return "b1", nil
		},
	}
	e, svc := newTestServer(t, st)

	result, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	rec := doJSON(e, http.MethodPut, "/api/tasks/t1/move", result.AccessToken, `{"toListId":"l2"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}
