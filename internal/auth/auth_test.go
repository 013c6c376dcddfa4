package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendclient/internal/apiclient"
	"attendclient/internal/model"
	"attendclient/internal/store"
)

func signed(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "u-1",
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestInspect(t *testing.T) {
	claims, err := Inspect(signed(t, "lecturer", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.RoleLecturer, claims.ModelRole())
	assert.Equal(t, "u-1", claims.SubjectID())
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(time.Now().Add(2*time.Hour)))

	_, err = Inspect("not-a-token")
	assert.Error(t, err)
	_, err = Inspect("")
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewStore(store.NewMemoryKV(), nil)

	state, err := st.Load(ctx)
	require.NoError(t, err)
	assert.False(t, state.Authenticated)

	user := model.User{ID: "u-1", FullName: "Dr. Asante", UserIdentifier: "LEC01", Role: model.RoleLecturer}
	require.NoError(t, st.Save(ctx, &apiclient.Session{User: user}))

	state, err = st.Load(ctx)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Equal(t, model.RoleLecturer, state.Role)
	require.NotNil(t, state.User)
	assert.Equal(t, "LEC01", state.User.UserIdentifier)
	assert.Equal(t, LecturerPath, state.HomePath())

	st.ClearOnUnauthorized()()
	state, err = st.Load(ctx)
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
}

func TestStoreDropsExpiredToken(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	st := NewStore(kv, nil)
	sess := &apiclient.Session{
		User:  model.User{ID: "u-2", Role: model.RoleStudent},
		Token: signed(t, "student", time.Now().Add(-time.Minute)),
	}
	require.NoError(t, st.Save(ctx, sess))

	state, err := st.Load(ctx)
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
	_, err = kv.Get(ctx, KeyRole)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		role         model.Role
		loggedIn     bool
		wantStatus   int
		wantRedirect string
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized, wantRedirect: LoginPath},
		{name: "student on lecturer page", role: model.RoleStudent, loggedIn: true, wantStatus: http.StatusForbidden, wantRedirect: StudentPath},
		{name: "lecturer", role: model.RoleLecturer, loggedIn: true, wantStatus: http.StatusOK},
		{name: "admin", role: model.RoleAdmin, loggedIn: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewStore(store.NewMemoryKV(), nil)
			if tt.loggedIn {
				require.NoError(t, st.Save(context.Background(), &apiclient.Session{User: model.User{ID: "u", Role: tt.role}}))
			}
			r := gin.New()
			r.GET("/lecturer", RequireRole(st, Staff...), func(c *gin.Context) {
				state, ok := FromContext(c)
				assert.True(t, ok)
				c.String(http.StatusOK, string(state.Role))
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lecturer", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantRedirect != "" {
				assert.Contains(t, w.Body.String(), `"redirect":"`+tt.wantRedirect+`"`)
			}
		})
	}
}
