package correlate

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/parser"
	"github.com/chriserin/ftr/internal/pickle"
)

// starts counts start requests and hands out resolved handles.
type starts struct {
	features  atomic.Int32
	scenarios atomic.Int32
}

func (s *starts) feature(fc *FeatureContext) *client.Handle {
	s.features.Add(1)
	return client.Resolved("feature:" + fc.Path())
}

func (s *starts) scenario(sc *ScenarioContext) *client.Handle {
	n := s.scenarios.Add(1)
	return client.Resolved(fmt.Sprintf("scenario-%d", n))
}

func newRegistry(t *testing.T, uri, source string) (*Registry, []pickle.Pickle) {
	t.Helper()
	docs := NewDocuments(nil)
	docs.RecordSource(uri, source)
	doc, errs := parser.Parse(uri, []byte(source))
	require.Empty(t, errs)
	return NewRegistry(docs), pickle.Compile(doc)
}

func outlineFeature(rows int) string {
	var b strings.Builder
	b.WriteString("Feature: Sums\n")
	b.WriteString("  Scenario Outline: Add <a>\n")
	b.WriteString("    Given I add <a>\n")
	b.WriteString("\n")
	b.WriteString("    Examples:\n")
	b.WriteString("      | a |\n")
	for i := range rows {
		fmt.Fprintf(&b, "      | %d |\n", i)
	}
	return b.String()
}

func TestOpenScenario_ConcurrentFeatureStartIssuedOnce(t *testing.T) {
	reg, pickles := newRegistry(t, "features/sums.feature", outlineFeature(50))
	require.Len(t, pickles, 50)
	var s starts

	var wg sync.WaitGroup
	contexts := make([]*ScenarioContext, len(pickles))
	for i, p := range pickles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tc := p.TestCase
			sc, err := reg.OpenScenario(events.ThreadID(fmt.Sprintf("t%d", i)), &tc, s.feature, s.scenario)
			assert.NoError(t, err)
			contexts[i] = sc
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), s.features.Load())
	assert.Equal(t, int32(50), s.scenarios.Load())
	assert.Len(t, reg.Features(), 1)
	for _, sc := range contexts {
		require.NotNil(t, sc)
		assert.Same(t, contexts[0].Feature(), sc.Feature())
		assert.NotNil(t, sc.Feature().Handle())
	}
}

func TestOpenScenario_ConcurrentDuplicateIdentity(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	tc := pickles[0].TestCase

	var wg sync.WaitGroup
	var won, dup atomic.Int32
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := tc
			_, err := reg.OpenScenario(events.ThreadID(fmt.Sprintf("t%d", i)), &local, s.feature, s.scenario)
			switch {
			case err == nil:
				won.Add(1)
			case assert.ErrorIs(t, err, ErrDuplicateScenario):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(49), dup.Load())
	assert.Equal(t, int32(1), s.scenarios.Load())
	assert.Equal(t, 1, reg.OpenScenarios())
}

func TestOpenScenario_OutlineOrdinalsFollowDeclarationOrder(t *testing.T) {
	reg, pickles := newRegistry(t, "calc.feature", `Feature: Calc
  Scenario Outline: Add <a>
    Given I add <a>

    Examples: first
      | a |
      | 1 |
      | 2 |

    Examples: second
      | a |
      | 3 |
`)
	require.Len(t, pickles, 3)
	var s starts

	// Run in reverse to show ordinals do not depend on execution order.
	got := map[int]string{}
	for i := len(pickles) - 1; i >= 0; i-- {
		tc := pickles[i].TestCase
		sc, err := reg.OpenScenario("main", &tc, s.feature, s.scenario)
		require.NoError(t, err)
		got[tc.Line] = sc.OutlineIteration()
		assert.Equal(t, tc.Line, sc.Line())
		_, err = reg.CloseScenario("main", time.Now())
		require.NoError(t, err)
	}

	assert.Equal(t, map[int]string{7: "[1]", 8: "[2]", 12: "[3]"}, got)

	// Repeated queries of the same line are stable.
	tc := pickles[1].TestCase
	tc.Designation = "again"
	sc, err := reg.OpenScenario("main", &tc, s.feature, s.scenario)
	require.NoError(t, err)
	assert.Equal(t, 2, sc.Iteration())
}

func TestOpenScenario_OutlineRowMissing(t *testing.T) {
	var s starts
	reg, pickles := newRegistry(t, "calc.feature", outlineFeature(2))
	sc, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)

	outlines := &outlineIndex{}
	_, err = outlines.iteration(sc.Node(), "calc.feature", 99)
	assert.ErrorIs(t, err, ErrOutlineRowNotFound)
}

func TestScenarioContext_StepIndexCoversBackgroundAndScenario(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	sc, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)

	for _, st := range pickles[0].Steps {
		node, err := sc.StepFor(st.Line)
		require.NoError(t, err, "line %d", st.Line)
		assert.Equal(t, st.Text, node.Text)
	}

	for _, line := range []int{1, 2, 3, 7, 11, 100} {
		_, err := sc.StepFor(line)
		assert.ErrorIs(t, err, ErrStepLineNotFound, "line %d", line)
	}
}

func TestScenarioContext_BackgroundQueue(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	sc, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)

	assert.Equal(t, "BACKGROUND: ", sc.StepPrefix())
	assert.True(t, sc.ConsumeBackgroundStep())
	assert.False(t, sc.ConsumeBackgroundStep())
	assert.False(t, sc.ConsumeBackgroundStep())
}

func TestScenarioContext_SetIDTwice(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	sc, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)
	require.NotNil(t, sc.ID())

	err = sc.SetID(client.Resolved("other"))
	assert.ErrorIs(t, err, ErrIDAlreadySet)
	id, _ := sc.ID().ID()
	assert.Equal(t, "scenario-1", id)
}

func TestScenarioContext_HookStatusLastWins(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	sc, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)

	sc.StartHook(client.Resolved("hook"))
	assert.Equal(t, events.StatusPassed, sc.HookStatus())
	sc.ObserveHookStatus(events.StatusFailed)
	sc.ObserveHookStatus(events.StatusSkipped)

	h, st := sc.EndHook()
	assert.NotNil(t, h)
	assert.Equal(t, events.StatusSkipped, st)
	assert.Nil(t, sc.Hook())
}

func TestScenarioContext_Attributes(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	sc, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)

	assert.Equal(t, []client.Attribute{{Value: "auth"}, {Value: "smoke"}}, sc.Attributes())
	assert.Equal(t, []client.Attribute{{Value: "auth"}}, sc.Feature().Attributes())
	assert.Equal(t, "Scenario", sc.Keyword())
	assert.Equal(t, "User logs in", sc.Name())
	assert.Equal(t, 7, sc.Line())
	assert.Empty(t, sc.OutlineIteration())
}

func TestOpenScenario_URIMismatch(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	tc := pickles[0].TestCase
	_, err := reg.OpenScenario("t1", &tc, s.feature, s.scenario)
	require.NoError(t, err)

	other := tc
	other.URI = "file:features/login.feature"
	other.Designation = ""
	_, err = reg.OpenScenario("t2", &other, s.feature, s.scenario)

	assert.ErrorIs(t, err, ErrURIMismatch)
	assert.Len(t, reg.Features(), 1)
	assert.Equal(t, int32(1), s.features.Load())
	assert.Equal(t, int32(1), s.scenarios.Load())
	_, err = reg.Current("t2")
	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestOpenScenario_ScenarioNotFound(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts
	tc := pickles[0].TestCase
	tc.Name = "Someone else"

	_, err := reg.OpenScenario("main", &tc, s.feature, s.scenario)

	assert.ErrorIs(t, err, ErrScenarioNotFound)
	assert.Contains(t, err.Error(), "scenario can't be nil")
}

func TestOpenScenario_SourceNotRecorded(t *testing.T) {
	reg := NewRegistry(NewDocuments(nil))
	var s starts

	_, err := reg.OpenScenario("main", &events.TestCase{URI: "ghost.feature", Line: 2, Name: "x"}, s.feature, s.scenario)

	assert.ErrorIs(t, err, ErrSourceNotRecorded)
	assert.Equal(t, int32(0), s.features.Load())
}

func TestOpenScenario_DegradedDocument(t *testing.T) {
	docs := NewDocuments(nil)
	docs.RecordSource("broken.feature", "not gherkin at all\n")
	reg := NewRegistry(docs)
	var s starts

	tc := events.TestCase{URI: "broken.feature", Line: 3, Name: "Runtime name", Keyword: "Example"}
	sc, err := reg.OpenScenario("main", &tc, s.feature, s.scenario)
	require.NoError(t, err)

	assert.Nil(t, sc.Node())
	assert.Equal(t, "Runtime name", sc.Name())
	assert.Equal(t, "Example", sc.Keyword())
	assert.Equal(t, 3, sc.Line())
	st, err := sc.StepFor(42)
	assert.NoError(t, err)
	assert.Nil(t, st)
	assert.False(t, sc.ConsumeBackgroundStep())
	assert.Nil(t, sc.Feature().Feature())
}

func TestCloseScenario_TracksFeatureCompletion(t *testing.T) {
	reg, pickles := newRegistry(t, "features/sums.feature", outlineFeature(2))
	var s starts
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	_, err := reg.OpenScenario("a", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)
	_, err = reg.OpenScenario("b", &pickles[1].TestCase, s.feature, s.scenario)
	require.NoError(t, err)

	_, err = reg.CloseScenario("b", t0.Add(2*time.Second))
	require.NoError(t, err)
	sc, err := reg.CloseScenario("a", t0.Add(time.Second))
	require.NoError(t, err)

	last, ok := sc.Feature().LastFinished()
	assert.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Second), last)
	assert.Equal(t, 0, reg.OpenScenarios())

	_, err = reg.Current("a")
	assert.ErrorIs(t, err, ErrNoActiveScenario)
	_, err = reg.CloseScenario("a", t0)
	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestCloseScenario_IdentityCanReopen(t *testing.T) {
	reg, pickles := newRegistry(t, "features/login.feature", loginFeature)
	var s starts

	_, err := reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)
	require.NoError(t, err)
	_, err = reg.CloseScenario("main", time.Now())
	require.NoError(t, err)
	_, err = reg.OpenScenario("main", &pickles[0].TestCase, s.feature, s.scenario)

	assert.NoError(t, err)
	assert.Equal(t, int32(2), s.scenarios.Load())
}

func TestCloseFeatures_UsesLastCompletionOrNow(t *testing.T) {
	docs := NewDocuments(nil)
	docs.RecordSource("a.feature", "Feature: A\n  Scenario: S\n    Given x\n")
	docs.RecordSource("b.feature", "Feature: B\n  Scenario: T\n    Given y\n")
	reg := NewRegistry(docs)
	var s starts

	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err := reg.OpenScenario("1", &events.TestCase{URI: "a.feature", Line: 2, Name: "S"}, s.feature, s.scenario)
	require.NoError(t, err)
	_, err = reg.CloseScenario("1", t0)
	require.NoError(t, err)
	_, err = reg.OpenScenario("2", &events.TestCase{URI: "b.feature", Line: 2, Name: "T"}, s.feature, s.scenario)
	require.NoError(t, err)

	now := t0.Add(time.Hour)
	ends := map[string]time.Time{}
	reg.CloseFeatures(now, func(fc *FeatureContext, end time.Time) {
		ends[fc.Path()] = end
	})

	assert.Equal(t, map[string]time.Time{"a.feature": t0, "b.feature": now}, ends)
	assert.Empty(t, reg.Features())
	assert.Equal(t, 0, reg.OpenScenarios())
	_, err = reg.Current("2")
	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestConsistencyError_Message(t *testing.T) {
	err := inconsistent(ErrStepLineNotFound, "a.feature", 4, "scenario %q", "S")
	assert.Equal(t, `step for unknown line in feature (a.feature:4): scenario "S"`, err.Error())
}

func TestFormatIteration(t *testing.T) {
	assert.Equal(t, "", FormatIteration(0))
	assert.Equal(t, "[1]", FormatIteration(1))
	assert.Equal(t, "[12]", FormatIteration(12))
}
