package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovahq/expense-claims/internal/domain/entity"
)

var testSecret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	actor := entity.Actor{
		UserID:       "emp-1",
		Role:         entity.RoleManager,
		DepartmentID: "dept-1",
	}

	token, err := NewToken(testSecret, actor, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", claims.UserID)
	assert.Equal(t, "MANAGER", claims.Role)
	assert.Equal(t, "dept-1", claims.DepartmentID)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewToken(testSecret, entity.Actor{UserID: "emp-1"}, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken([]byte("other-secret"), token)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := NewToken(testSecret, entity.Actor{UserID: "emp-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)
}

func newAuthTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", authMiddleware(testSecret), func(c *gin.Context) {
		actor := currentActor(c)
		c.String(200, actor.UserID)
	})
	return router
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := newAuthTestRouter()

	token, err := NewToken(testSecret, entity.Actor{UserID: "emp-1", Role: entity.RoleEmployee}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "emp-1", rec.Body.String())
}

func TestAuthMiddleware_MissingOrBadToken(t *testing.T) {
	router := newAuthTestRouter()

	req := httptest.NewRequest("GET", "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)

	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/finance", authMiddleware(testSecret), requireRole(entity.RoleFinance), func(c *gin.Context) {
		c.Status(200)
	})

	cases := []struct {
		role entity.Role
		want int
	}{
		{entity.RoleFinance, 200},
		{entity.RoleAdmin, 200},
		{entity.RoleEmployee, 403},
		{entity.RoleManager, 403},
	}
	for _, tc := range cases {
		token, err := NewToken(testSecret, entity.Actor{UserID: "u-1", Role: tc.role}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/finance", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "role %s", tc.role)
	}
}
