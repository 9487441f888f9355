package attributes

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mrzor/rtos-trace/internal/config"
)

func sampleTask() *TaskEnv {
	return &TaskEnv{
		TaskID:      1073421932,
		TaskName:    "printTask",
		BusyTicks:   30,
		Utilization: 0.25,
		Intervals:   3,
		Markers:     2,
		Env:         map[string]string{"BOARD": "esp32", "CI_JOB": "42"},
	}
}

func TestEvaluator_Simple(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "board", Expression: `env["BOARD"]`},
		{Name: "task.label", Expression: `task_name + "#" + string(task_id)`},
		{Name: "task.hot", Expression: `utilization > 0.2`},
	}

	evaluator, err := NewEvaluator(attrs, nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result, err := evaluator.Evaluate(sampleTask())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(result))
	}

	want := []struct{ key, value string }{
		{"board", "esp32"},
		{"task.label", "printTask#1073421932"},
		{"task.hot", "true"},
	}
	for i, w := range want {
		if string(result[i].Key) != w.key {
			t.Errorf("result[%d].Key = %q, want %q", i, result[i].Key, w.key)
		}
		if result[i].Value.AsString() != w.value {
			t.Errorf("result[%d].Value = %q, want %q", i, result[i].Value.AsString(), w.value)
		}
	}
}

func TestEvaluator_MapExpansion(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "host", Expression: `env`},
	}

	evaluator, err := NewEvaluator(attrs, nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result, err := evaluator.Evaluate(sampleTask())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 attributes (map expansion), got %d", len(result))
	}

	got := map[string]string{}
	for _, kv := range result {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["host.BOARD"] != "esp32" {
		t.Errorf("host.BOARD = %q, want esp32", got["host.BOARD"])
	}
	if got["host.CI_JOB"] != "42" {
		t.Errorf("host.CI_JOB = %q, want 42", got["host.CI_JOB"])
	}
}

func TestEvaluator_SanitizesExpandedKeys(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "m", Expression: `{"core-0": busy_ticks, "a.b": intervals}`},
	}

	evaluator, err := NewEvaluator(attrs, nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result, err := evaluator.Evaluate(sampleTask())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	got := map[string]string{}
	for _, kv := range result {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["m.core_0"] != "30" {
		t.Errorf("m.core_0 = %q, want 30", got["m.core_0"])
	}
	if got["m.a_b"] != "3" {
		t.Errorf("m.a_b = %q, want 3", got["m.a_b"])
	}
}

func TestEvaluator_CompileError(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "bad", Expression: `pid + 1`},
	}

	if _, err := NewEvaluator(attrs, nil); err == nil {
		t.Error("NewEvaluator() expected error for unknown variable")
	}
}

func TestEvaluator_RuntimeErrorSkipsAttribute(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	attrs := []config.CustomAttribute{
		{Name: "missing", Expression: `int(env["NOPE"])`},
		{Name: "name", Expression: `task_name`},
	}

	evaluator, err := NewEvaluator(attrs, zap.New(core))
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result, err := evaluator.Evaluate(sampleTask())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(result) != 1 || string(result[0].Key) != "name" {
		t.Errorf("Evaluate() = %v, want only the name attribute", result)
	}
	if logs.FilterMessage("Failed to evaluate custom attribute").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

func TestEvaluator_NoAttributes(t *testing.T) {
	evaluator, err := NewEvaluator(nil, nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result, err := evaluator.Evaluate(sampleTask())
	if err != nil || result != nil {
		t.Errorf("Evaluate() = %v, %v; want nil, nil", result, err)
	}
}

func TestEvaluator_NilEnv(t *testing.T) {
	evaluator, err := NewEvaluator([]config.CustomAttribute{{Name: "x", Expression: `task_id`}}, nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result, err := evaluator.Evaluate(nil)
	if err != nil || result != nil {
		t.Errorf("Evaluate(nil) = %v, %v; want nil, nil", result, err)
	}
}

func TestSanitizeAttributeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"FOO", "FOO"},
		{"foo-bar", "foo_bar"},
		{"a.b c", "a_b_c"},
		{"x_1", "x_1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeAttributeName(tt.in); got != tt.want {
			t.Errorf("sanitizeAttributeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
