package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brightclass/video-service/pkg/models"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testSecret, "test-issuer")

	token, err := svc.GenerateToken("user-1", models.RoleTeacher, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("claims.UserID = %s, want user-1", claims.UserID)
	}
	if claims.Role != string(models.RoleTeacher) {
		t.Errorf("claims.Role = %s, want teacher", claims.Role)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("claims.Issuer = %s, want test-issuer", claims.Issuer)
	}

	ttl := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if ttl != time.Hour {
		t.Errorf("token ttl = %v, want 1h", ttl)
	}
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	svc := NewJWTService(testSecret, "test-issuer")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"not a jwt", "not-a-jwt"},
		{"garbage segments", "aaa.bbb.ccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); err == nil {
				t.Error("ValidateToken() expected error for invalid token")
			}
		})
	}
}

func TestJWTService_ValidateToken_WrongSecret(t *testing.T) {
	svc1 := NewJWTService("secret-one-that-is-long-enough", "iss")
	svc2 := NewJWTService("secret-two-that-is-different!!", "iss")

	token, _ := svc1.GenerateToken("user-1", models.RoleStudent, time.Hour)

	if _, err := svc2.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should fail with wrong secret")
	}
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	svc := NewJWTService(testSecret, "iss")

	token, _ := svc.GenerateToken("user-1", models.RoleStudent, -time.Minute)

	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should fail for an expired token")
	}
}

func TestJWTService_Middleware(t *testing.T) {
	svc := NewJWTService(testSecret, "iss")

	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			t.Error("caller not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(caller.UserID + ":" + string(caller.Role)))
	}))

	token, _ := svc.GenerateToken("user-1", models.RoleAdmin, time.Hour)

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusOK)
		}
		if rr.Body.String() != "user-1:admin" {
			t.Errorf("handler returned %s, want user-1:admin", rr.Body.String())
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Basic "+token)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-For single", "192.168.1.1", "", "127.0.0.1:8080", "192.168.1.1"},
		{"X-Forwarded-For multiple", "192.168.1.1, 10.0.0.1", "", "127.0.0.1:8080", "192.168.1.1"},
		{"X-Real-IP", "", "192.168.1.1", "127.0.0.1:8080", "192.168.1.1"},
		{"RemoteAddr with port", "", "", "192.168.1.1:12345", "192.168.1.1"},
		{"X-Forwarded-For wins", "10.0.0.1", "192.168.1.1", "127.0.0.1:8080", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}
