package application

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds how many scenarios a suite runs at once.
const DefaultParallelism = 1

// SuiteReport collects the outcome of every scenario in a suite, in
// declaration order.
type SuiteReport struct {
	Execution string
	Outcomes  []ScenarioOutcome
}

// Passed reports whether every scenario passed.
func (r *SuiteReport) Passed() bool {
	for _, o := range r.Outcomes {
		if !o.Passed() {
			return false
		}
	}
	return true
}

// Failures returns the outcomes that did not pass.
func (r *SuiteReport) Failures() []ScenarioOutcome {
	var failed []ScenarioOutcome
	for _, o := range r.Outcomes {
		if !o.Passed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Counts returns how many scenarios passed, failed their rules and errored.
func (r *SuiteReport) Counts() (passed, failed, errored int) {
	for _, o := range r.Outcomes {
		switch o.Status() {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		default:
			errored++
		}
	}
	return passed, failed, errored
}

// RunSuite runs every scenario with at most parallelism running at once.
// One scenario's failure never stops the others.
func RunSuite(ctx context.Context, sc *ScenarioContext, scenarios []Scenario, parallelism int) *SuiteReport {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	report := &SuiteReport{
		Execution: sc.executionName(),
		Outcomes:  make([]ScenarioOutcome, len(scenarios)),
	}

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, s := range scenarios {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				report.Outcomes[i] = ScenarioOutcome{Scenario: s.Name, Err: fmt.Errorf("scenario not started: %w", err)}
				return nil
			}
			report.Outcomes[i] = RunScenario(ctx, sc, s)
			return nil
		})
	}
	_ = g.Wait()

	passed, failed, errored := report.Counts()
	sc.logger().InfoContext(ctx, "suite finished",
		"execution", report.Execution,
		"passed", passed,
		"failed", failed,
		"errored", errored,
	)
	return report
}
