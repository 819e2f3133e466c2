package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/whoami", func(c *gin.Context) {
		owner, _ := OwnerFrom(c.Request.Context())
		c.String(http.StatusOK, owner)
	})
	return router
}

func TestJWTMiddleware(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "user-123", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{Subject: "user-123", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	noSubject := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	wrongAud := jwt.RegisteredClaims{Subject: "user-123", Audience: jwt.ClaimStrings{"other"}}
	rightAud := jwt.RegisteredClaims{Subject: "user-123", Audience: jwt.ClaimStrings{"scan-check"}}

	tests := []struct {
		name       string
		audience   string
		header     string
		cookie     string
		wantStatus int
		wantOwner  string
	}{
		{name: "bearer", header: "Bearer " + signToken(t, valid, testSecret), wantStatus: http.StatusOK, wantOwner: "user-123"},
		{name: "cookie", cookie: signToken(t, valid, testSecret), wantStatus: http.StatusOK, wantOwner: "user-123"},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, valid, "nope"), wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, expired, testSecret), wantStatus: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + signToken(t, noSubject, testSecret), wantStatus: http.StatusUnauthorized},
		{name: "wrong audience", audience: "scan-check", header: "Bearer " + signToken(t, wrongAud, testSecret), wantStatus: http.StatusUnauthorized},
		{name: "right audience", audience: "scan-check", header: "Bearer " + signToken(t, rightAud, testSecret), wantStatus: http.StatusOK, wantOwner: "user-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(JWTMiddleware(testSecret, tt.audience))
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tt.cookie})
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, resp.Code, resp.Body.String())
			}
			if tt.wantOwner != "" && resp.Body.String() != tt.wantOwner {
				t.Fatalf("expected owner %q, got %q", tt.wantOwner, resp.Body.String())
			}
		})
	}
}

func TestFixedOwner(t *testing.T) {
	router := newRouter(FixedOwner("local"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if resp.Body.String() != "local" {
		t.Fatalf("expected local owner, got %q", resp.Body.String())
	}
}
