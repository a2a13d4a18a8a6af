package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// resolveVault resolves a ${VAULT:path#key} reference. KV v1 and v2 mounts
// both work; v2 payloads are unwrapped from their "data" envelope.
func resolveVault(ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return "", fmt.Errorf("invalid Vault reference %q: want path#key", ref)
	}

	client, err := vaultClient()
	if err != nil {
		return "", err
	}

	secret, err := client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault: nothing stored at %s", path)
	}
	return vaultField(secret.Data, path, key)
}

// vaultClient builds a client from VAULT_ADDR, VAULT_TOKEN and the optional
// VAULT_NAMESPACE.
func vaultClient() (*api.Client, error) {
	env := map[string]string{}
	for _, name := range []string{"VAULT_ADDR", "VAULT_TOKEN"} {
		v := os.Getenv(name)
		if v == "" {
			return nil, fmt.Errorf("vault: %s is not set", name)
		}
		env[name] = v
	}

	cfg := api.DefaultConfig()
	cfg.Address = env["VAULT_ADDR"]
	cfg.Timeout = 10 * time.Second

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(env["VAULT_TOKEN"])
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}
	return client, nil
}

func vaultField(data map[string]any, path, key string) (string, error) {
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}
	switch v := data[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("vault: no key %q at %s", key, path)
	default:
		return "", fmt.Errorf("vault: key %q at %s holds %T, not a string", key, path, v)
	}
}
