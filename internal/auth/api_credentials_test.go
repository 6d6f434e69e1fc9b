package auth

import (
	"errors"
	"strings"
	"testing"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestAPICredentialsResolverUsesConfiguredEnvNames(t *testing.T) {
	resolver := APICredentialsResolver{
		KeyEnv:      "MY_KEY",
		SeedEnv:     "MY_SEED",
		ImageKeyEnv: "MY_IMG",
		Getenv:      envFrom(map[string]string{"MY_KEY": "k", "MY_SEED": " s ", "MY_IMG": "i"}),
		Command: func(name string, args ...string) ([]byte, error) {
			return nil, errors.New("should not execute command")
		},
	}

	creds, err := resolver.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds != (APICredentials{Key: "k", Seed: "s", ImageKey: "i"}) {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestAPICredentialsResolverRejectsPartialEnv(t *testing.T) {
	resolver := APICredentialsResolver{
		Getenv: envFrom(map[string]string{"GACQ_API_KEY": "k"}),
	}

	_, err := resolver.Resolve()
	if err == nil || !strings.Contains(err.Error(), "GACQ_API_SEED") {
		t.Fatalf("expected partial env error, got %v", err)
	}
}

func TestAPICredentialsResolverFallsBackToKeychain(t *testing.T) {
	secrets := map[string]string{
		apiKeychainAccountKey:    "kc-key\n",
		apiKeychainAccountSeed:   "kc-seed\n",
		apiKeychainAccountImages: "kc-img\n",
	}
	resolver := APICredentialsResolver{
		GOOS:   "darwin",
		Getenv: envFrom(nil),
		Command: func(name string, args ...string) ([]byte, error) {
			account := args[len(args)-2]
			value, ok := secrets[account]
			if !ok {
				return nil, errors.New("not found")
			}
			return []byte(value), nil
		},
	}

	creds, err := resolver.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.Key != "kc-key" || creds.Seed != "kc-seed" || creds.ImageKey != "kc-img" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestAPICredentialsResolverNotFound(t *testing.T) {
	resolver := APICredentialsResolver{
		Getenv: envFrom(nil),
		Command: func(name string, args ...string) ([]byte, error) {
			return nil, errors.New("not found")
		},
	}

	_, err := resolver.Resolve()
	if !errors.Is(err, ErrAPICredentialsNotFound) {
		t.Fatalf("expected ErrAPICredentialsNotFound, got %v", err)
	}
}

func TestAPICredentialsResolverSkipsKeychainOffDarwin(t *testing.T) {
	resolver := APICredentialsResolver{
		GOOS:   "linux",
		Getenv: envFrom(nil),
		Command: func(name string, args ...string) ([]byte, error) {
			t.Fatalf("unexpected command %s %v", name, args)
			return nil, nil
		},
	}

	_, err := resolver.Resolve()
	if !errors.Is(err, ErrAPICredentialsNotFound) || !strings.Contains(err.Error(), "GACQ_API_KEY") {
		t.Fatalf("expected not found naming the env vars, got %v", err)
	}
}
