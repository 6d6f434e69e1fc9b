// Package verify checks an item folder against the manifest its worker
// wrote and records the outcome in the item sidecar.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/jaa/game-acquire/internal/sidecar"
)

const fileNotFound = "File not found"

var statPath = os.Stat

type Result struct {
	Success bool                  `json:"success"`
	Errors  []sidecar.VerifyError `json:"errors,omitempty"`
}

// Message is a one-line summary suitable for the caller.
func (r Result) Message() string {
	if r.Success {
		return "verification passed"
	}
	return fmt.Sprintf("%d files failed verification", len(r.Errors))
}

type Options struct {
	// CaseSensitive enables the lower/upper case probes for members that
	// are not found under their manifest spelling.
	CaseSensitive bool
}

// DefaultOptions assumes case-sensitive filesystems everywhere except
// Windows and macOS.
func DefaultOptions() Options {
	return Options{CaseSensitive: runtime.GOOS != "windows" && runtime.GOOS != "darwin"}
}

type Verifier struct {
	store *sidecar.Store
	opts  Options
}

func New(store *sidecar.Store, opts Options) *Verifier {
	if store == nil {
		store = sidecar.NewStore()
	}
	return &Verifier{store: store, opts: opts}
}

// Check compares the manifest to the tree without writing anything.
func (v *Verifier) Check(itemDir string) (Result, error) {
	manifest, err := v.store.ReadManifest(itemDir)
	if err != nil {
		return Result{}, err
	}

	errs := []sidecar.VerifyError{}
	for member, entry := range manifest {
		if v.exists(itemDir, member) {
			continue
		}
		errs = append(errs, sidecar.VerifyError{
			File:         member,
			Error:        fileNotFound,
			ExpectedSize: entry.Size,
		})
	}
	sortErrors(errs)

	if len(errs) > 0 {
		return Result{Success: false, Errors: errs}, nil
	}
	return Result{Success: true}, nil
}

// Verify runs Check and records the result: failures leave a terminal
// failed state on the sidecar, success clears downloadingData.
func (v *Verifier) Verify(itemDir string, item string) (Result, error) {
	if _, err := v.store.Read(itemDir, item); err != nil {
		return Result{}, err
	}

	result, err := v.Check(itemDir)
	if err != nil {
		return Result{}, err
	}

	err = v.store.Update(itemDir, item, func(record *sidecar.Record) error {
		if result.Success {
			record.Downloading = nil
		} else {
			record.Downloading = sidecar.FailedState(result.Errors)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("record verification result for %s: %w", item, err)
	}
	return result, nil
}

func (v *Verifier) exists(itemDir string, member string) bool {
	rel := normalizeMember(member)
	if pathExists(filepath.Join(itemDir, rel)) {
		return true
	}
	if !v.opts.CaseSensitive {
		return false
	}
	return pathExists(filepath.Join(itemDir, strings.ToLower(rel))) ||
		pathExists(filepath.Join(itemDir, strings.ToUpper(rel)))
}

func normalizeMember(member string) string {
	replaced := strings.NewReplacer("/", string(filepath.Separator), `\`, string(filepath.Separator)).Replace(member)
	return filepath.Clean(replaced)
}

func pathExists(path string) bool {
	_, err := statPath(path)
	return err == nil
}

func sortErrors(errs []sidecar.VerifyError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].File < errs[j].File })
}
