package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// Filter is a glob matched against scenario names. Empty keeps all.
	Filter string

	// GoldenDir holds golden traces. Empty disables golden comparison.
	GoldenDir string

	// Update rewrites golden files instead of comparing them.
	Update bool
}

// ScenarioOutcome is the result of one scenario in a suite.
type ScenarioOutcome struct {
	Path   string
	Name   string
	Pass   bool
	Errors []string
	Golden string // "", "match", "mismatch", "missing" or "updated"
}

// SuiteResult summarizes a suite run.
type SuiteResult struct {
	Scenarios []ScenarioOutcome
	Passed    int
	Failed    int
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// FindScenarios returns the .yaml and .yml files under path, sorted.
// A file path is returned as is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite runs every scenario under path. Scenario failures are reported in
// the result; the error is reserved for files that cannot be loaded or run.
func RunSuite(ctx context.Context, path string, opts SuiteOptions) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}

	suite := &SuiteResult{Scenarios: []ScenarioOutcome{}}
	for _, file := range files {
		scenario, err := LoadScenario(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if opts.Filter != "" {
			matched, err := filepath.Match(opts.Filter, scenario.Name)
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}

		result, err := RunContext(ctx, scenario)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		outcome := ScenarioOutcome{
			Path:   file,
			Name:   scenario.Name,
			Pass:   result.Pass,
			Errors: result.Errors,
		}

		if opts.GoldenDir != "" {
			outcome.Golden, err = checkGolden(opts, scenario, result)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			if outcome.Golden == "mismatch" || outcome.Golden == "missing" {
				outcome.Pass = false
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("golden trace %s", outcome.Golden))
			}
		}

		if outcome.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Scenarios = append(suite.Scenarios, outcome)
	}

	return suite, nil
}

func checkGolden(opts SuiteOptions, scenario *Scenario, result *Result) (string, error) {
	if opts.Update {
		if err := WriteGolden(opts.GoldenDir, scenario, result); err != nil {
			return "", err
		}
		return "updated", nil
	}

	match, err := CompareGolden(opts.GoldenDir, scenario, result)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "missing", nil
	case err != nil:
		return "", err
	case match:
		return "match", nil
	default:
		return "mismatch", nil
	}
}
