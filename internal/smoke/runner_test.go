package smoke

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRunner(out *bytes.Buffer, opts ...RunnerOption) *Runner {
	env := &Env{Client: NewClient("http://example.test", 0)}
	return NewRunner(env, out, opts...)
}

func scenario(name string, err error) Scenario {
	return Scenario{Name: name, Run: func(context.Context, *Env) error { return err }}
}

func TestRunnerCountsOutcomes(t *testing.T) {
	var out bytes.Buffer
	sum := newTestRunner(&out).Run(context.Background(), []Scenario{
		scenario("a", nil),
		scenario("b", errors.New("boom")),
		scenario("c", Skip("not today")),
		scenario("d", nil),
	})

	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.False(t, sum.OK())
	assert.Contains(t, out.String(), "FAIL b")
	assert.Contains(t, out.String(), "boom")
	assert.Contains(t, out.String(), "2 passed, 1 failed, 1 skipped")
}

func TestRunnerFailFastSkipsRemaining(t *testing.T) {
	var out bytes.Buffer
	ran := false
	sum := newTestRunner(&out, WithFailFast(true)).Run(context.Background(), []Scenario{
		scenario("first", errors.New("boom")),
		{Name: "second", Run: func(context.Context, *Env) error { ran = true; return nil }},
	})

	assert.False(t, ran)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, Skipped, sum.Results[1].Outcome)
}

func TestRunnerRecoversPanics(t *testing.T) {
	var out bytes.Buffer
	sum := newTestRunner(&out).Run(context.Background(), []Scenario{
		{Name: "panics", Run: func(context.Context, *Env) error { panic("kaboom") }},
	})

	assert.Equal(t, 1, sum.Failed)
	assert.ErrorContains(t, sum.Results[0].Err, "kaboom")
}

func TestSelectScenarios(t *testing.T) {
	got, err := Select([]string{"Chat", "health"})
	assert.NoError(t, err)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "health", got[0].Name)
		assert.Equal(t, "chat", got[1].Name)
	}

	_, err = Select([]string{"nope"})
	assert.ErrorContains(t, err, "nope")

	all, err := Select(nil)
	assert.NoError(t, err)
	assert.Len(t, all, len(Scenarios()))
}
