package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrAPICredentialsNotFound = errors.New("api credentials not found")

const (
	apiKeychainService       = "gacq.api"
	apiKeychainAccountKey    = "api_key"
	apiKeychainAccountSeed   = "seed"
	apiKeychainAccountImages = "image_key"
)

// APICredentials sign requests to the remote index API. ImageKey is only
// needed for header image downloads.
type APICredentials struct {
	Key      string
	Seed     string
	ImageKey string
}

// APICredentialsResolver looks up credentials in the configured env vars
// and, on macOS, falls back to the login keychain.
type APICredentialsResolver struct {
	KeyEnv      string
	SeedEnv     string
	ImageKeyEnv string
	GOOS        string
	Getenv      func(string) string
	Command     commandRunner
}

func ResolveAPICredentials(keyEnv string, seedEnv string, imageKeyEnv string) (APICredentials, error) {
	return APICredentialsResolver{
		KeyEnv:      keyEnv,
		SeedEnv:     seedEnv,
		ImageKeyEnv: imageKeyEnv,
		Getenv:      os.Getenv,
		Command:     runCommandOutput,
	}.Resolve()
}

func (r APICredentialsResolver) Resolve() (APICredentials, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	keyEnv := envName(r.KeyEnv, "GACQ_API_KEY")
	seedEnv := envName(r.SeedEnv, "GACQ_API_SEED")
	imageEnv := envName(r.ImageKeyEnv, "GACQ_IMAGE_KEY")

	creds := APICredentials{
		Key:      strings.TrimSpace(getenv(keyEnv)),
		Seed:     strings.TrimSpace(getenv(seedEnv)),
		ImageKey: strings.TrimSpace(getenv(imageEnv)),
	}
	if creds.Key != "" && creds.Seed != "" {
		return creds, nil
	}
	if creds.Key != "" || creds.Seed != "" {
		return APICredentials{}, fmt.Errorf("both %s and %s are required", keyEnv, seedEnv)
	}
	if !keychainAvailable(r.GOOS) {
		return APICredentials{}, fmt.Errorf("%w: set %s and %s", ErrAPICredentialsNotFound, keyEnv, seedEnv)
	}

	command := r.Command
	if command == nil {
		command = runCommandOutput
	}
	creds.Key = keychainCredential(command, apiKeychainService, apiKeychainAccountKey)
	creds.Seed = keychainCredential(command, apiKeychainService, apiKeychainAccountSeed)
	if creds.ImageKey == "" {
		creds.ImageKey = keychainCredential(command, apiKeychainService, apiKeychainAccountImages)
	}
	if creds.Key == "" || creds.Seed == "" {
		return APICredentials{}, ErrAPICredentialsNotFound
	}
	return creds, nil
}

func envName(configured string, fallback string) string {
	if name := strings.TrimSpace(configured); name != "" {
		return name
	}
	return fallback
}
