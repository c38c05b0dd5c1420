package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// ErrSkipped marks a scenario that could not run, usually because an earlier
// one failed to produce the state it needs.
var ErrSkipped = errors.New("smoke: skipped")

// Skip returns an ErrSkipped with a reason.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// State is shared between scenarios of one run.
type State struct {
	UserID         string
	AgentID        string
	ConversationID string
}

// Env is what a scenario gets to work with.
type Env struct {
	Client   *Client
	Email    string
	Password string
	State    *State
	Logger   *logging.Logger
}

// Scenario is one named check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

type Outcome string

const (
	Passed  Outcome = "PASS"
	Failed  Outcome = "FAIL"
	Skipped Outcome = "SKIP"
)

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Summary aggregates a run.
type Summary struct {
	Results  []Result
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// OK reports whether nothing failed.
func (s Summary) OK() bool { return s.Failed == 0 }

// Runner executes scenarios in order.
type Runner struct {
	env      *Env
	out      io.Writer
	styles   Styles
	failFast bool
	timeout  time.Duration
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithFailFast stops at the first failure; remaining scenarios are skipped.
func WithFailFast(on bool) RunnerOption {
	return func(r *Runner) { r.failFast = on }
}

// WithStyles overrides the output styles.
func WithStyles(s Styles) RunnerOption {
	return func(r *Runner) { r.styles = s }
}

// WithScenarioTimeout bounds each scenario.
func WithScenarioTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

func NewRunner(env *Env, out io.Writer, opts ...RunnerOption) *Runner {
	if env.State == nil {
		env.State = &State{}
	}
	if env.Logger == nil {
		env.Logger = logging.Discard()
	}
	r := &Runner{env: env, out: out, styles: NewStyles(true), timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes scenarios sequentially and prints one line per scenario plus
// a summary.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) Summary {
	start := time.Now()
	var sum Summary
	fmt.Fprintln(r.out, r.styles.Title.Render(fmt.Sprintf("Running %d scenario(s) against %s", len(scenarios), r.env.Client.baseURL)))

	aborted := false
	for _, sc := range scenarios {
		res := Result{Name: sc.Name}
		if aborted {
			res.Outcome = Skipped
			res.Err = Skip("fail-fast")
		} else {
			res = r.runOne(ctx, sc)
		}
		sum.Results = append(sum.Results, res)
		switch res.Outcome {
		case Passed:
			sum.Passed++
		case Failed:
			sum.Failed++
			if r.failFast {
				aborted = true
			}
		case Skipped:
			sum.Skipped++
		}
		r.print(res)
	}
	sum.Duration = time.Since(start)

	line := fmt.Sprintf("%d passed, %d failed, %d skipped in %s",
		sum.Passed, sum.Failed, sum.Skipped, sum.Duration.Round(time.Millisecond))
	style := r.styles.Pass
	if !sum.OK() {
		style = r.styles.Fail
	}
	fmt.Fprintln(r.out, style.Render(line))
	return sum
}

func (r *Runner) runOne(ctx context.Context, sc Scenario) (res Result) {
	res.Name = sc.Name
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = Failed
			res.Err = fmt.Errorf("panic: %v", p)
		}
		res.Duration = time.Since(start)
	}()

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.env.Logger.Debug("scenario started", "scenario", sc.Name)
	err := sc.Run(sctx, r.env)
	switch {
	case err == nil:
		res.Outcome = Passed
	case errors.Is(err, ErrSkipped):
		res.Outcome = Skipped
		res.Err = err
	default:
		res.Outcome = Failed
		res.Err = err
	}
	r.env.Logger.Debug("scenario finished", "scenario", sc.Name, "outcome", string(res.Outcome))
	return res
}

func (r *Runner) print(res Result) {
	var tag string
	switch res.Outcome {
	case Passed:
		tag = r.styles.Pass.Render("PASS")
	case Failed:
		tag = r.styles.Fail.Render("FAIL")
	default:
		tag = r.styles.Skip.Render("SKIP")
	}
	dur := r.styles.Muted.Render(res.Duration.Round(time.Millisecond).String())
	fmt.Fprintf(r.out, "  %s %s %s\n", tag, res.Name, dur)
	if res.Err != nil {
		fmt.Fprintln(r.out, r.styles.Detail.Render(res.Err.Error()))
	}
}
