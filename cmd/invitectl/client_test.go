package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_UnwrapsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/admin/vendors", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"v":1,"success":true,"data":{"vendors":[]}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := call(&out, newClient(srv.URL, "secret").R(), http.MethodGet, "/api/v1/admin/vendors")
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendors":[]}`, out.String())
}

func TestCall_ReturnsEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"v":1,"success":false,"error":"Unauthorized","code":"UNAUTHORIZED","message":"Invalid admin token"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := call(&out, newClient(srv.URL, "wrong").R(), http.MethodGet, "/api/v1/admin/vendors")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNAUTHORIZED")
	assert.Contains(t, err.Error(), "Invalid admin token")
	assert.Empty(t, out.String())
}

func TestCall_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, call(&out, newClient(srv.URL, "t").R(), http.MethodDelete, "/api/v1/admin/users/u1"))
	assert.Equal(t, "ok\n", out.String())
}

func TestValidateStepConfig(t *testing.T) {
	cmd := validateStepConfigCmd()
	cmd.SetArgs([]string{"click", `{}`})
	assert.NoError(t, cmd.Execute())

	cmd = validateStepConfigCmd()
	cmd.SetArgs([]string{"nonsense", `{}`})
	assert.Error(t, cmd.Execute())
}
