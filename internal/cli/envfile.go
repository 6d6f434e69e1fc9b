package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var dotenvKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dotEnvFiles are read in order; a later file overrides an earlier one, but
// neither overrides a variable already present in the process environment.
var dotEnvFiles = []string{".env", ".env.local"}

func loadDotEnvFiles(cwd string, environ []string, setenv func(string, string) error) error {
	if strings.TrimSpace(cwd) == "" {
		return nil
	}
	if setenv == nil {
		return errors.New("setenv is required")
	}

	inherited := make(map[string]bool, len(environ))
	for _, pair := range environ {
		if key, _, ok := strings.Cut(pair, "="); ok {
			inherited[key] = true
		}
	}

	for _, name := range dotEnvFiles {
		path := filepath.Join(cwd, name)
		entries, err := readDotEnvFile(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if inherited[entry[0]] {
				continue
			}
			if err := setenv(entry[0], entry[1]); err != nil {
				return fmt.Errorf("set %s from %s: %w", entry[0], path, err)
			}
		}
	}
	return nil
}

// readDotEnvFile returns the file's key/value pairs in order. A missing
// file yields no pairs.
func readDotEnvFile(path string) ([][2]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer file.Close()

	var entries [][2]string
	scanner := bufio.NewScanner(file)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		key, value, ok, err := parseDotEnvLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("parse %s:%d: %w", path, lineNo, err)
		}
		if ok {
			entries = append(entries, [2]string{key, value})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return entries, nil
}

// parseDotEnvLine accepts KEY=VALUE with an optional export prefix. Quoted
// values are taken literally; unquoted values drop a trailing " #" comment.
func parseDotEnvLine(raw string) (string, string, bool, error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, nil
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false, fmt.Errorf("expected KEY=VALUE format")
	}
	key = strings.TrimSpace(key)
	if !dotenvKeyPattern.MatchString(key) {
		return "", "", false, fmt.Errorf("invalid key %q", key)
	}
	value = strings.TrimSpace(value)

	switch {
	case len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"':
		decoded, err := strconv.Unquote(value)
		if err != nil {
			return "", "", false, fmt.Errorf("invalid quoted value for %q", key)
		}
		return key, decoded, true, nil
	case len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'':
		return key, value[1 : len(value)-1], true, nil
	}
	if before, _, hasComment := strings.Cut(value, " #"); hasComment {
		value = strings.TrimSpace(before)
	}
	return key, value, true, nil
}
