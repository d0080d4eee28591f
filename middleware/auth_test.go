package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/utils"
)

func runRequest(handler gin.HandlerFunc, setup func(r *http.Request)) (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/practice/exercise", nil)
	if setup != nil {
		setup(c.Request)
	}
	handler(c)
	return w, c
}

func TestRequireStudent_ValidToken(t *testing.T) {
	mw := NewAuthMiddleware(&config.Config{JWTSecret: "test-secret"})
	token, err := utils.GenerateJWT("student-42", "calculo-1", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	_, c := runRequest(mw.RequireStudent(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	if c.IsAborted() {
		t.Fatal("valid token should not abort")
	}
	if got := GetStudentID(c); got != "student-42" {
		t.Errorf("GetStudentID = %q, want student-42", got)
	}
	if got := GetCourse(c); got != "calculo-1" {
		t.Errorf("GetCourse = %q, want calculo-1", got)
	}
}

func TestRequireStudent_MissingToken(t *testing.T) {
	mw := NewAuthMiddleware(&config.Config{JWTSecret: "test-secret"})

	w, c := runRequest(mw.RequireStudent(), nil)

	if !c.IsAborted() {
		t.Fatal("missing token should abort")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireStudent_WrongSecret(t *testing.T) {
	mw := NewAuthMiddleware(&config.Config{JWTSecret: "real-secret"})
	token, err := utils.GenerateJWT("student-42", "calculo-1", "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	w, c := runRequest(mw.RequireStudent(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	if !c.IsAborted() {
		t.Fatal("forged token should abort")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireStudent_ExpiredToken(t *testing.T) {
	mw := NewAuthMiddleware(&config.Config{JWTSecret: "test-secret"})
	token, err := utils.GenerateJWT("student-42", "calculo-1", "test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	w, c := runRequest(mw.RequireStudent(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	if !c.IsAborted() {
		t.Fatal("expired token should abort")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireOperatorKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("llave-maestra"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := &config.Config{OperatorKeyHash: string(hash)}

	t.Run("accepts the right key", func(t *testing.T) {
		_, c := runRequest(RequireOperatorKey(cfg), func(r *http.Request) {
			r.Header.Set("X-Operator-Key", "llave-maestra")
		})
		if c.IsAborted() {
			t.Error("correct key should pass")
		}
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		w, c := runRequest(RequireOperatorKey(cfg), func(r *http.Request) {
			r.Header.Set("X-Operator-Key", "adivinanza")
		})
		if !c.IsAborted() {
			t.Fatal("wrong key should abort")
		}
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("rejects a missing key", func(t *testing.T) {
		w, _ := runRequest(RequireOperatorKey(cfg), nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("disabled without a configured hash", func(t *testing.T) {
		w, _ := runRequest(RequireOperatorKey(&config.Config{}), func(r *http.Request) {
			r.Header.Set("X-Operator-Key", "llave-maestra")
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})
}
