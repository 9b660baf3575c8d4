package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	handler "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, input user.RegisterInput) (*user.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*user.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func serve(t *testing.T, register func(chi.Router), method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router := chi.NewRouter()
	register(router)
	router.ServeHTTP(rr, req)
	return rr
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var errorResponse map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errorResponse), "Failed to decode error response body")
	msg, _ := errorResponse["error"].(string)
	return msg
}

func TestUserHandler_handleRegister_Success(t *testing.T) {
	mockService := new(MockUserService)
	h := handler.NewUserHandler(mockService)

	requestDTO := handler.RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "secret1"}
	created := &user.User{
		ID:           uuid.Must(uuid.NewV4()),
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "hashed_password_from_service",
		CreatedAt:    time.Now().Truncate(time.Second),
	}
	mockService.On("Register", mock.Anything, user.RegisterInput{
		Username: requestDTO.Username,
		Email:    requestDTO.Email,
		Password: requestDTO.Password,
	}).Return(created, nil).Once()

	rr := serve(t, h.RegisterRoutes, http.MethodPost, "/auth/register", mustJSON(t, requestDTO))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "hashed_password_from_service", "password hash must never leave the server")

	var actualResponse handler.AuthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
	assert.Equal(t, created.ID, actualResponse.User.ID)
	assert.Equal(t, "ada@example.com", actualResponse.User.Email)
	assert.WithinDuration(t, created.CreatedAt, actualResponse.User.CreatedAt, time.Second)
	mockService.AssertExpectations(t)
}

func TestUserHandler_handleRegister_EmailExists(t *testing.T) {
	mockService := new(MockUserService)
	h := handler.NewUserHandler(mockService)
	mockService.On("Register", mock.Anything, mock.AnythingOfType("user.RegisterInput")).
		Return(nil, user.ErrEmailExists).
		Once()

	rr := serve(t, h.RegisterRoutes, http.MethodPost, "/auth/register",
		mustJSON(t, handler.RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "secret1"}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "User already exists", decodeError(t, rr))
	mockService.AssertExpectations(t)
}

func TestUserHandler_handleRegister_InvalidJSON(t *testing.T) {
	mockService := new(MockUserService)
	h := handler.NewUserHandler(mockService)

	rr := serve(t, h.RegisterRoutes, http.MethodPost, "/auth/register",
		[]byte(`{"username": "ada", "email": "ada@example.com" "password": "pass}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr), "Invalid request payload")
	mockService.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestUserHandler_handleRegister_UnknownField(t *testing.T) {
	mockService := new(MockUserService)
	h := handler.NewUserHandler(mockService)

	rr := serve(t, h.RegisterRoutes, http.MethodPost, "/auth/register",
		[]byte(`{"username":"ada","email":"ada@example.com","password":"secret1","isAdmin":true}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr), `unknown field "isAdmin"`)
	mockService.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestUserHandler_handleRegister_ValidationError(t *testing.T) {
	mockService := new(MockUserService)
	h := handler.NewUserHandler(mockService)

	rr := serve(t, h.RegisterRoutes, http.MethodPost, "/auth/register",
		mustJSON(t, handler.RegisterRequest{Username: "a", Email: "incorrect-email", Password: "123"}))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var errorResponse handler.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errorResponse))
	assert.Equal(t, "Validation failed", errorResponse.Error)
	assert.Equal(t, map[string]string{
		"username": "must be at least 2",
		"email":    "must be a valid email",
		"password": "must be at least 6",
	}, errorResponse.Details)
	mockService.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestUserHandler_handleLogin(t *testing.T) {
	u := &user.User{ID: uuid.Must(uuid.NewV4()), Username: "ada", Email: "ada@example.com"}

	tests := []struct {
		name       string
		serviceErr error
		wantCode   int
		wantErrMsg string
	}{
		{name: "success", wantCode: http.StatusOK},
		{name: "bad credentials", serviceErr: user.ErrInvalidCredentials, wantCode: http.StatusUnauthorized, wantErrMsg: "Invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockUserService)
			h := handler.NewUserHandler(mockService)
			if tt.serviceErr != nil {
				mockService.On("Authenticate", mock.Anything, "ada@example.com", "secret1").Return(nil, tt.serviceErr).Once()
			} else {
				mockService.On("Authenticate", mock.Anything, "ada@example.com", "secret1").Return(u, nil).Once()
			}

			rr := serve(t, h.RegisterRoutes, http.MethodPost, "/auth/login",
				mustJSON(t, handler.LoginRequest{Email: "ada@example.com", Password: "secret1"}))
			require.Equal(t, tt.wantCode, rr.Code)
			if tt.wantErrMsg != "" {
				assert.Equal(t, tt.wantErrMsg, decodeError(t, rr))
				return
			}

			var resp handler.AuthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, u.ID, resp.User.ID)
			mockService.AssertExpectations(t)
		})
	}
}
