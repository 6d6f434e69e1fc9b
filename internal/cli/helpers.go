package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/service"
)

func loadConfig(app *AppContext) (config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: strings.TrimSpace(app.Opts.ConfigPath),
		WorkingDir:   wd,
	})
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func isTTY(file *os.File) bool {
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func canPrompt(app *AppContext) bool {
	if app.Opts.NoInput || app.Opts.JSON {
		return false
	}
	in, ok := app.IO.In.(*os.File)
	return ok && isTTY(in)
}

func promptLine(app *AppContext, prompt string) (string, error) {
	fmt.Fprintf(app.IO.Out, "%s: ", prompt)
	reader := bufio.NewReader(app.IO.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptYesNo(app *AppContext, prompt string) (bool, error) {
	fmt.Fprintf(app.IO.Out, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(app.IO.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes", nil
}

// printResult writes the envelope as one JSON line in --json mode, or a
// short human summary otherwise, and returns the mapped exit error.
func printResult(app *AppContext, result service.Result) error {
	if app.Opts.JSON {
		encoder := json.NewEncoder(app.IO.Out)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(result); err != nil {
			return err
		}
		return resultError(result)
	}

	if result.Success {
		if result.Message != "" && !app.Opts.Quiet {
			fmt.Fprintln(app.IO.Out, result.Message)
		}
		if result.Data != nil {
			if err := printData(app, result.Data); err != nil {
				return err
			}
		}
		return nil
	}

	if result.Err == nil && result.Data != nil {
		if err := printData(app, result.Data); err != nil {
			return err
		}
	}
	return resultError(result)
}

func printData(app *AppContext, data any) error {
	switch value := data.(type) {
	case bool:
		fmt.Fprintln(app.IO.Out, value)
		return nil
	case string:
		fmt.Fprintln(app.IO.Out, value)
		return nil
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(app.IO.Out, string(payload))
	return nil
}
