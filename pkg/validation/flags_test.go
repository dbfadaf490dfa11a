package validation

import "testing"

// TestFlags_Operations 测试标志位操作
func TestFlags_Operations(t *testing.T) {
	var f Flags
	f.Set(FlagAutoValidate)
	f.Set(FlagLean)

	if !f.Contain(FlagAutoValidate | FlagLean) {
		t.Errorf("Expected %s to contain auto_validate|lean", f)
	}
	if !f.SkipsValidation() {
		t.Error("Lean instance should skip validation")
	}

	f.Unset(FlagLean)
	if f.SkipsValidation() {
		t.Error("Expected validation after unsetting lean")
	}

	f.Toggle(FlagHideValidationResults)
	if !f.Contain(FlagHideValidationResults) {
		t.Error("Toggle should set hide_results")
	}
	f.Toggle(FlagHideValidationResults)
	if f.HasAny(FlagHideValidationResults, FlagSuspendValidation) {
		t.Errorf("Unexpected flags: %s", f)
	}
}

func TestFlags_With(t *testing.T) {
	base := FlagAutoValidate
	on := base.With(FlagSuspendValidation, true)
	off := on.With(FlagAutoValidate, false)

	if base != FlagAutoValidate {
		t.Errorf("With must not modify the receiver, got %s", base)
	}
	if on != FlagAutoValidate|FlagSuspendValidation {
		t.Errorf("Expected suspend|auto_validate, got %s", on)
	}
	if off != FlagSuspendValidation {
		t.Errorf("Expected suspend, got %s", off)
	}
}

func TestFlags_String(t *testing.T) {
	tests := []struct {
		flags Flags
		want  string
	}{
		{FlagNone, "none"},
		{FlagAutoValidate, "auto_validate"},
		{FlagSuspendValidation | FlagHideValidationResults, "suspend|hide_results"},
		{FlagLean | FlagAutoValidate, "lean|auto_validate"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("Flags(%d).String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
}
