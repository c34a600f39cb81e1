package runner

import "testing"

func TestManagedIsDescriptionBased(t *testing.T) {
	managed := ManagedStringParameter("GIT_REF", "main")
	if !managed.Managed() {
		t.Fatal("expected a bridge-owned parameter")
	}
	user := ParameterDefinition{Name: "GIT_REF", Kind: KindString, Description: "user owned"}
	if user.Managed() {
		t.Fatal("a user parameter must not look managed")
	}
}

func TestDefaultParameterValue(t *testing.T) {
	cases := []struct {
		name string
		def  ParameterDefinition
		want string
		ok   bool
	}{
		{name: "string", def: ParameterDefinition{Name: "p", Kind: KindString, Default: "v"}, want: "v", ok: true},
		{name: "string empty", def: ParameterDefinition{Name: "p", Kind: KindString}, want: "", ok: true},
		{name: "boolean", def: ParameterDefinition{Name: "p", Kind: KindBoolean, Default: "true"}, want: "true", ok: true},
		{name: "choice default", def: ParameterDefinition{Name: "p", Kind: KindChoice, Default: "b", Choices: []string{"a", "b"}}, want: "b", ok: true},
		{name: "choice first", def: ParameterDefinition{Name: "p", Kind: KindChoice, Choices: []string{"a", "b"}}, want: "a", ok: true},
		{name: "choice empty", def: ParameterDefinition{Name: "p", Kind: KindChoice}, ok: false},
		{name: "other with default", def: ParameterDefinition{Name: "p", Kind: KindOther, Default: "x"}, want: "x", ok: true},
		{name: "other empty", def: ParameterDefinition{Name: "p", Kind: KindOther}, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, ok := tc.def.DefaultParameterValue()
			if ok != tc.ok {
				t.Fatalf("ok: want %v, got %v", tc.ok, ok)
			}
			if ok && (value.Name != "p" || value.Value != tc.want) {
				t.Fatalf("want %q, got %+v", tc.want, value)
			}
		})
	}
}

func TestJobName(t *testing.T) {
	if got := JobName("demo", "app"); got != "demo-app" {
		t.Fatalf("want demo-app, got %q", got)
	}
}
