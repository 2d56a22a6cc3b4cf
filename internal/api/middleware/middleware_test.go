package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/auth"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"0.0.0.0/0", "https://example.com"}

	if !IsOriginAllowed("https://example.com", allowed) {
		t.Fatalf("expected origin to be allowed")
	}
	if !IsOriginAllowed("https://anything.local", allowed) {
		t.Fatalf("expected wildcard allowlist to permit origin")
	}
	if !IsOriginAllowed("", allowed) {
		t.Fatalf("expected empty origin to be allowed")
	}
	if IsOriginAllowed("https://evil.local", []string{"https://example.com"}) {
		t.Fatalf("expected unlisted origin to be rejected")
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{"0.0.0.0/0"}) {
		t.Fatalf("expected wildcard to be detected")
	}
	if containsWildcard([]string{"https://example.com"}) {
		t.Fatalf("did not expect wildcard to be detected")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := auth.NewJWTManager("test-secret", 10*time.Minute)

	router := gin.New()
	router.Use(Auth(manager))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString("username")})
	})

	token, err := manager.Generate("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	// Bearer header.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rec.Code)
	}

	// Query token, as used by WebSocket clients.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ping?token="+token, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with query token, got %d", rec.Code)
	}

	// Missing token.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	// Garbage token.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with invalid token, got %d", rec.Code)
	}
}
