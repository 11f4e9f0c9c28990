package template

import "testing"

func TestRenderPlainSubstitution(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		args map[string]string
		want string
	}{
		{
			name: "single placeholder",
			tmpl: "Confirm deletion of {{path}}",
			args: map[string]string{"path": "/tmp/x"},
			want: "Confirm deletion of /tmp/x",
		},
		{
			name: "unknown placeholder left as-is",
			tmpl: "Hello {{name}}, {{unknown}}",
			args: map[string]string{"name": "Ada"},
			want: "Hello Ada, {{unknown}}",
		},
		{
			name: "no placeholders",
			tmpl: "static text",
			args: nil,
			want: "static text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.args)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderIsPure(t *testing.T) {
	tmpl := "{{a}}-{{b}}"
	args := map[string]string{"a": "x", "b": "y"}
	first, err := Render(tmpl, args)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := Render(tmpl, args)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if first != second {
		t.Errorf("Render() not pure: %q != %q", first, second)
	}
}

func TestRenderGoTemplateWithSprig(t *testing.T) {
	got, err := Render(`{{ if eq .confirm "true" }}yes{{ else }}no{{ end }}`, map[string]string{"confirm": "true"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "yes" {
		t.Errorf("Render() = %q, want %q", got, "yes")
	}
}

func TestRenderGoTemplateMissingKeyErrors(t *testing.T) {
	if _, err := Render(`{{ if eq .missing "true" }}yes{{ end }}`, nil); err == nil {
		t.Fatal("Render() error = nil, want error for missing key")
	}
}

func TestExtractVariables(t *testing.T) {
	got := ExtractVariables("{{a}} and {{b}} and {{a}} again")
	want := map[string]bool{"a": true, "b": true}
	if len(got) != len(want) {
		t.Fatalf("ExtractVariables() = %v, want keys %v", got, want)
	}
	for _, v := range got {
		if !want[v] {
			t.Errorf("ExtractVariables() unexpected variable %q", v)
		}
	}
}
