package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/loopcard/backend/internal/store"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	hash, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)

	assert.True(t, verifyPassword("password123", hash))
	assert.False(t, verifyPassword("wrong", hash))
	assert.False(t, verifyPassword("password123", "malformed"))

	// Same password hashes differently each time thanks to the random salt.
	hash2, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestAuthService_Register(t *testing.T) {
	setupAuthConfig()
	mem := store.NewMemoryStore()
	service := NewAuthService(mem.Users(), nil)

	t.Run("successful registration", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{
			Email:       "Test@Example.com",
			Password:    "password123",
			FirstName:   "John",
			LastName:    "Doe",
			PhoneNumber: "+14155550123",
		})

		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "test@example.com", resp.User.Email)

		stored, err := mem.Users().GetByEmail(context.Background(), "test@example.com")
		assert.NoError(t, err)
		assert.True(t, verifyPassword("password123", stored.PasswordHash))
	})

	t.Run("validation failure", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{Email: "not-an-email", Password: "x"})

		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString("not json"))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	setupAuthConfig()
	mem := store.NewMemoryStore()
	service := NewAuthService(mem.Users(), nil)

	// Register first so there is someone to log in.
	body, _ := json.Marshal(RegisterRequest{
		Email:       "login@example.com",
		Password:    "password123",
		FirstName:   "Jane",
		LastName:    "Doe",
		PhoneNumber: "+14155550124",
	})
	r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
	service.Register(httptest.NewRecorder(), r)

	t.Run("successful login", func(t *testing.T) {
		body, _ := json.Marshal(LoginRequest{Email: "login@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		body, _ := json.Marshal(LoginRequest{Email: "login@example.com", Password: "nope-nope"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		body, _ := json.Marshal(LoginRequest{Email: "ghost@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_GetUserAccount(t *testing.T) {
	setupAuthConfig()
	mem := store.NewMemoryStore()
	service := NewAuthService(mem.Users(), nil)

	t.Run("no user in context", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/auth/account", nil)
		w := httptest.NewRecorder()

		service.GetUserAccount(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/auth/account", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "ghost"))
		w := httptest.NewRecorder()

		service.GetUserAccount(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
