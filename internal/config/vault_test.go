package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// vaultServer serves one secret at path with the given payload.
func vaultServer(t *testing.T, path string, payload map[string]any, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/"+path {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if check != nil {
			check(r)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": payload})
	}))
	t.Cleanup(server.Close)
	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")
	t.Setenv("VAULT_NAMESPACE", "")
	return server
}

func TestResolveVault_KVv2(t *testing.T) {
	vaultServer(t, "secret/data/rowforge", map[string]any{
		"data": map[string]any{"password": "s3cret"},
	}, nil)

	val, err := resolveVault("secret/data/rowforge#password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("expected 's3cret', got %q", val)
	}
}

func TestResolveVault_KVv1(t *testing.T) {
	vaultServer(t, "kv/pg", map[string]any{"password": "flat"}, nil)

	val, err := resolveVault("kv/pg#password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "flat" {
		t.Errorf("expected 'flat', got %q", val)
	}
}

func TestResolveVault_Namespace(t *testing.T) {
	var gotNS string
	vaultServer(t, "secret/data/ns", map[string]any{
		"data": map[string]any{"token": "abc"},
	}, func(r *http.Request) { gotNS = r.Header.Get("X-Vault-Namespace") })
	t.Setenv("VAULT_NAMESPACE", "team-a")

	if _, err := resolveVault("secret/data/ns#token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotNS != "team-a" {
		t.Errorf("namespace header = %q, want team-a", gotNS)
	}
}

func TestResolveVault_Errors(t *testing.T) {
	vaultServer(t, "secret/data/rowforge", map[string]any{
		"data": map[string]any{"username": "admin", "port": 5432},
	}, nil)

	tests := []struct {
		name string
		ref  string
	}{
		{"missing key", "secret/data/rowforge#nonexistent"},
		{"non-string value", "secret/data/rowforge#port"},
		{"no secret", "secret/data/other#key"},
		{"no separator", "no-hash-separator"},
		{"empty key", "secret/data/rowforge#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveVault(tt.ref); err == nil {
				t.Errorf("expected error for %q", tt.ref)
			}
		})
	}
}

func TestResolveVault_MissingEnv(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")

	if _, err := resolveVault("secret/data/path#key"); err == nil {
		t.Error("expected error when VAULT_ADDR not set")
	}
}

func TestResolveValue_VaultInsideDSN(t *testing.T) {
	vaultServer(t, "secret/data/rowforge", map[string]any{
		"data": map[string]any{"db_pass": "hunter2"},
	}, nil)

	val, err := ResolveValue("postgres://app:${VAULT:secret/data/rowforge#db_pass}@db:5432/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "postgres://app:hunter2@db:5432/app" {
		t.Errorf("unexpected DSN %q", val)
	}
}
