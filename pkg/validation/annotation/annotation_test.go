package annotation

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/metrics"
	"katydid-common-validation/pkg/validation/result"
)

// testAccount 测试模型
type testAccount struct {
	Name     string `validate:"required,max=8"`
	Email    string `validate:"omitempty,email"`
	Nickname string
	Broken   string `validate:"no_such_rule"`
	secret   string `validate:"required"`
}

// countingEvaluator 统计评估次数
type countingEvaluator struct {
	mu    sync.Mutex
	inner Evaluator
	calls map[string]int
}

func newCountingEvaluator(inner Evaluator) *countingEvaluator {
	return &countingEvaluator{inner: inner, calls: make(map[string]int)}
}

func (e *countingEvaluator) Evaluate(ec *EvaluationContext, value any) (*Violation, error) {
	e.mu.Lock()
	e.calls[ec.Property.Name]++
	e.mu.Unlock()
	return e.inner.Evaluate(ec, value)
}

func (e *countingEvaluator) count(property string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[property]
}

func describeAccount(t *testing.T) *TypeDescriptor {
	t.Helper()
	td, err := NewDescriber("").Describe(&testAccount{})
	require.NoError(t, err)
	return td
}

func TestDescriber_Describe(t *testing.T) {
	d := NewDescriber("")

	td, err := d.Describe(&testAccount{})
	require.NoError(t, err)

	assert.Equal(t, reflect.TypeOf(testAccount{}), td.Type())
	assert.Equal(t, []string{"Name", "Email", "Nickname", "Broken", "secret"}, td.Names())

	secret, ok := td.Property("secret")
	require.True(t, ok)
	assert.Nil(t, secret.Getter, "unexported fields have no public getter")

	name, _ := td.Property("Name")
	v, ok := name.Getter(&testAccount{Name: "katy"})
	require.True(t, ok)
	assert.Equal(t, "katy", v)

	again, err := d.Describe(testAccount{})
	require.NoError(t, err)
	assert.Same(t, td, again)

	_, err = d.Describe(42)
	assert.ErrorIs(t, err, ErrNotStruct)
	_, err = d.Describe(nil)
	assert.ErrorIs(t, err, ErrNilSample)
}

func TestNewTypeDescriptor_Duplicate(t *testing.T) {
	_, err := NewTypeDescriptor(&testAccount{},
		PropertyDescriptor{Name: "Name"},
		PropertyDescriptor{Name: "Name"},
	)
	assert.ErrorIs(t, err, ErrDuplicateProperty)
}

func TestRegistry_AppendOnly(t *testing.T) {
	r := NewRegistry(nil)
	typ := reflect.TypeOf(&testAccount{})

	assert.False(t, r.IsIgnored(typ, "Name"))
	assert.True(t, r.MarkIgnored(typ, "Name"))
	assert.False(t, r.MarkIgnored(typ, "Name"))
	assert.True(t, r.IsIgnored(reflect.TypeOf(testAccount{}), "Name"), "pointer and value share the entry")

	r.RegisterExclusions(typ, "HasErrors")
	r.RegisterExclusions(typ, "Other")
	assert.Equal(t, []string{"HasErrors", "Name"}, r.Ignored(typ))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil)
	typ := reflect.TypeOf(testAccount{})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.MarkIgnored(typ, fmt.Sprintf("P%d", i%4))
			_ = r.IsIgnored(typ, "P0")
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Ignored(typ), 4)
}

func TestPlaygroundEvaluator(t *testing.T) {
	e := NewPlaygroundEvaluator()
	td := describeAccount(t)
	name, _ := td.Property("Name")
	broken, _ := td.Property("Broken")

	tests := []struct {
		name        string
		property    PropertyDescriptor
		value       any
		wantTag     string
		wantMessage string
		wantFailure bool
	}{
		{name: "valid", property: name, value: "katy"},
		{name: "required", property: name, value: "", wantTag: "required", wantMessage: "Name is required"},
		{name: "max", property: name, value: "far too long", wantTag: "max", wantMessage: "Name must be at most 8"},
		{name: "undefined rule", property: broken, value: "x", wantFailure: true},
		{name: "no rules", property: PropertyDescriptor{Name: "Nickname"}, value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := e.Evaluate(&EvaluationContext{Property: tt.property}, tt.value)
			if tt.wantFailure {
				assert.ErrorIs(t, err, ErrEvaluatorFailure)
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			if tt.wantTag == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.wantTag, v.Tag)
			assert.Equal(t, tt.wantMessage, v.Message)
		})
	}
}

type politeAccount struct {
	Name string `validate:"required"`
}

func (politeAccount) ValidationMessage(property, tag, _ string) string {
	if property == "Name" && tag == "required" {
		return "please tell us your name"
	}
	return ""
}

func TestPlaygroundEvaluator_MessageProvider(t *testing.T) {
	td, err := NewDescriber("").Describe(politeAccount{})
	require.NoError(t, err)
	pd, _ := td.Property("Name")

	v, err := NewPlaygroundEvaluator().Evaluate(&EvaluationContext{Target: politeAccount{}, Property: pd}, "")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "please tell us your name", v.Message)
}

func TestChecker_Check(t *testing.T) {
	m, err := metrics.NewCollector("test", nil)
	require.NoError(t, err)
	registry := NewRegistry(m)
	evaluator := newCountingEvaluator(NewPlaygroundEvaluator())
	checker := NewChecker(registry, evaluator, nil, m)
	td := describeAccount(t)

	account := &testAccount{}
	state := NewInstanceState()

	assert.Equal(t, OutcomeViolation, checker.Check(state, td, account, "Name", false))
	msg, ok := state.Message("Name")
	require.True(t, ok)
	assert.Equal(t, "Name is required", msg)
	assert.Equal(t, []result.FieldResult{result.FieldError("Name", "Name is required")}, state.Failures())

	account.Name = "katy"
	assert.Equal(t, OutcomeValid, checker.Check(state, td, account, "Name", false))
	assert.Empty(t, state.Failures())

	assert.Equal(t, OutcomeIgnored, checker.Check(state, td, account, "secret", false))
	assert.Equal(t, OutcomeIgnored, checker.Check(state, td, account, "Nickname", false))
	assert.Equal(t, OutcomeIgnored, checker.Check(state, td, account, "Unknown", false))
	assert.Equal(t, OutcomeFailure, checker.Check(state, td, account, "Broken", false))

	assert.Equal(t, []string{"Broken", "Nickname", "Unknown", "secret"}, registry.Ignored(td.Type()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checks(metrics.CheckFailure)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IgnoredProperties()))
}

func TestChecker_IgnoredIsPermanentAcrossInstances(t *testing.T) {
	registry := NewRegistry(nil)
	evaluator := newCountingEvaluator(NewPlaygroundEvaluator())
	checker := NewChecker(registry, evaluator, nil, nil)
	td := describeAccount(t)

	first := NewInstanceState()
	assert.Equal(t, OutcomeFailure, checker.Check(first, td, &testAccount{}, "Broken", false))
	assert.Equal(t, 1, evaluator.count("Broken"))

	for i := 0; i < 5; i++ {
		other := NewInstanceState()
		assert.Equal(t, OutcomeIgnored, checker.Check(other, td, &testAccount{}, "Broken", false))
	}
	assert.Equal(t, 1, evaluator.count("Broken"))
}

func TestChecker_DeferredCatchUp(t *testing.T) {
	evaluator := newCountingEvaluator(NewPlaygroundEvaluator())
	checker := NewChecker(NewRegistry(nil), evaluator, nil, nil)
	td := describeAccount(t)
	state := NewInstanceState()
	account := &testAccount{Email: "not-an-email"}

	assert.Equal(t, OutcomeDeferred, checker.Check(state, td, account, "Name", true))
	assert.Equal(t, OutcomeDeferred, checker.Check(state, td, account, "Email", true))
	assert.Equal(t, OutcomeDeferred, checker.Check(state, td, account, "Name", true))
	assert.Equal(t, 2, state.DeferredLen())
	assert.Zero(t, evaluator.count("Name"))

	assert.Equal(t, 2, checker.CatchUp(state, td, account))
	assert.Zero(t, state.DeferredLen())
	assert.Equal(t, 1, evaluator.count("Name"))
	assert.Equal(t, 1, evaluator.count("Email"))
	assert.Len(t, state.Failures(), 2)

	assert.Zero(t, checker.CatchUp(state, td, account))
}

func TestInstanceState_EvaluationContextCached(t *testing.T) {
	td := describeAccount(t)
	pd, _ := td.Property("Name")
	state := NewInstanceState()
	account := &testAccount{}

	first := state.evaluationContext(account, td, pd)
	second := state.evaluationContext(account, td, pd)
	assert.Same(t, first, second)
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(*EvaluationContext, any) (*Violation, error) {
	return nil, fmt.Errorf("%w: metadata missing", ErrEvaluatorFailure)
}

func TestChecker_FailureClearsPreviousMessage(t *testing.T) {
	registry := NewRegistry(nil)
	td := describeAccount(t)
	state := NewInstanceState()
	state.Record("Name", "stale")

	checker := NewChecker(registry, failingEvaluator{}, nil, nil)
	assert.Equal(t, OutcomeFailure, checker.Check(state, td, &testAccount{}, "Name", false))

	_, ok := state.Message("Name")
	assert.False(t, ok)
	assert.True(t, errors.Is(fmt.Errorf("%w", ErrEvaluatorFailure), ErrEvaluatorFailure))
}
