package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email": "alice@corp.com"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "alice@corp.com", dest.Email)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))
	err := ParseJSON(r, &dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestParseJSONOrError(t *testing.T) {
	var dest map[string]string
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))

	ok := ParseJSONOrError(w, r, &dest)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	var gotErr error
	router.HandleFunc("/teams/{teamId}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathString(r, "teamId")
	})

	req := httptest.NewRequest("GET", "/teams/team-1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, gotErr)
	assert.Equal(t, "team-1", got)
}

func TestParsePathStringMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ParsePathString(r, "teamId")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing path parameter")
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest("GET", "/metadata?teamId=team-1", nil)
	assert.Equal(t, "team-1", ParseQueryString(r, "teamId", ""))
	assert.Equal(t, "fallback", ParseQueryString(r, "absent", "fallback"))
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(w, "value", "email"))

	w = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(w, "", "email"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email is required")
}
