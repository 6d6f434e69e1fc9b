package config

import "fmt"

const defaultDownloadDirectory = "~/Games"

func DefaultTemplate() string {
	return Template(defaultDownloadDirectory)
}

// Template renders a starter config with the given primary download
// directory and every other value at its default.
func Template(downloadDirectory string) string {
	if downloadDirectory == "" {
		downloadDirectory = defaultDownloadDirectory
	}
	defaults := DefaultConfig()
	return fmt.Sprintf(`version: 1
download_directory: %q
additional_directories: []
state_dir: %q
game_source: "ascendara"
notifications: false
theme: %q
workers:
  dir: %q
  python: "python3"
  timeout_seconds: %d
termination:
  settle_delay: "5s"
  timeout: "10s"
  delete_retries: 5
  delete_backoff: "3s"
local_index:
  path: %q
  enabled: false
  share: false
  per_page: %d
  workers: %d
  poll_interval: "500ms"
api:
  base_url: %q
  key_env: "GACQ_API_KEY"
  seed_env: "GACQ_API_SEED"
  image_key_env: "GACQ_IMAGE_KEY"
`,
		downloadDirectory,
		defaults.StateDir,
		defaults.Theme,
		defaults.Workers.Dir,
		defaults.Workers.TimeoutSeconds,
		defaults.LocalIndex.Path,
		defaults.LocalIndex.PerPage,
		defaults.LocalIndex.Workers,
		defaults.API.BaseURL,
	)
}
