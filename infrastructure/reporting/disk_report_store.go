// Package reporting persists scenario runs and caches chat responses on
// local disk, and ties both to an evaluation setup through
// ReportingConfiguration.
package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.ReportStore = (*DiskReportStore)(nil)

const (
	resultsDir = "results"
	reportExt  = ".json"
	reportMode = 0o644
	dirMode    = 0o755
)

// DiskReportStore keeps one JSON file per scenario run at
// <root>/results/<execution>/<scenario>.json. Files are written atomically
// and validated against the scenario run schema before they land.
type DiskReportStore struct {
	root string
	// mu serializes the exists-check and write so a record is written once.
	mu sync.Mutex
}

// NewDiskReportStore returns a store rooted at root.
func NewDiskReportStore(root string) (*DiskReportStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, &domain.MissingConfigurationError{Keys: []string{"storage root"}}
	}
	return &DiskReportStore{root: root}, nil
}

// Root returns the storage root directory.
func (s *DiskReportStore) Root() string { return s.root }

func (s *DiskReportStore) path(execution, scenario string) string {
	return filepath.Join(s.root, resultsDir, execution, scenario+reportExt)
}

// Write persists run. A second write for the same execution and scenario
// fails with ports.ErrReportExists.
func (s *DiskReportStore) Write(ctx context.Context, run *domain.ScenarioRun) error {
	if run == nil {
		return fmt.Errorf("%w: scenario run is nil", domain.ErrEmptyValue)
	}
	exec, scen := run.ExecutionName, run.ScenarioName
	if err := checkNames(exec, scen); err != nil {
		return ports.NewReportError(exec, scen, "write", err)
	}
	if err := ctx.Err(); err != nil {
		return ports.NewReportError(exec, scen, "write", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return ports.NewReportError(exec, scen, "encode", err)
	}
	if err := ValidateScenarioRunJSON(data); err != nil {
		return ports.NewReportError(exec, scen, "validate", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(exec, scen)
	if _, err := os.Stat(path); err == nil {
		return ports.NewReportError(exec, scen, "write", ports.ErrReportExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return ports.NewReportError(exec, scen, "stat", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return ports.NewReportError(exec, scen, "mkdir", err)
	}
	if err := writeFileAtomic(path, append(data, '\n'), reportMode); err != nil {
		return ports.NewReportError(exec, scen, "write", err)
	}
	return nil
}

// Read loads the record for execution and scenario.
func (s *DiskReportStore) Read(ctx context.Context, execution, scenario string) (*domain.ScenarioRun, error) {
	if err := checkNames(execution, scenario); err != nil {
		return nil, ports.NewReportError(execution, scenario, "read", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ports.NewReportError(execution, scenario, "read", err)
	}

	data, err := os.ReadFile(s.path(execution, scenario))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewReportError(execution, scenario, "read", ports.ErrReportNotFound)
	}
	if err != nil {
		return nil, ports.NewReportError(execution, scenario, "read", err)
	}

	var run domain.ScenarioRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, ports.NewReportError(execution, scenario, "decode", err)
	}
	return &run, nil
}

// ListExecutions returns the recorded execution names in sorted order.
func (s *DiskReportStore) ListExecutions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, resultsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, ports.NewReportError("", "", "list executions", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && validPathSegment(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// ListScenarios returns the scenario names recorded under execution in
// sorted order. An unknown execution yields ports.ErrReportNotFound.
func (s *DiskReportStore) ListScenarios(ctx context.Context, execution string) ([]string, error) {
	if !validPathSegment(execution) {
		return nil, ports.NewReportError(execution, "", "list scenarios", errInvalidName(execution))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, resultsDir, execution))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewReportError(execution, "", "list scenarios", ports.ErrReportNotFound)
	}
	if err != nil {
		return nil, ports.NewReportError(execution, "", "list scenarios", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), reportExt)
		if e.Type().IsRegular() && ok && validPathSegment(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func checkNames(execution, scenario string) error {
	if !validPathSegment(execution) {
		return errInvalidName(execution)
	}
	if !validPathSegment(scenario) {
		return errInvalidName(scenario)
	}
	return nil
}

func errInvalidName(name string) error {
	return fmt.Errorf("%w: invalid name %q", domain.ErrInvalidConfiguration, name)
}
