// Package template renders Prompt templates (spec.md §3 "template rendering
// is pure; no network I/O during render"). It is adapted from the teacher's
// internal/template.Engine, which templated service-operation arguments
// with the same {{ variable }} substitution plus an escape hatch into full
// Go templates with Sprig functions for expressions a plain substitution
// can't express (conditionals, string transforms, defaults).
package template

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"mcpgateway/pkg/gwerr"
)

// variablePattern matches simple placeholders like {{ name }} or
// {{name}}, the subset of template syntax prompt authors write by hand.
// Anything containing Go template control syntax (pipelines, conditionals)
// falls through to RenderGoTemplate instead.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// isPlainSubstitution reports whether tmpl consists only of literal text
// and {{ name }} placeholders, with none of Go template's control syntax.
func isPlainSubstitution(tmpl string) bool {
	stripped := variablePattern.ReplaceAllString(tmpl, "")
	return !strings.Contains(stripped, "{{")
}

// Render renders a Prompt template against string-valued arguments
// (spec.md §8 scenario "prompts/get with identical args ... yields
// identical rendered text"). Plain {{ name }} placeholders are substituted
// directly; templates using Go template syntax are executed with Sprig's
// function map for richer rendering (trim, default, conditionals), matching
// the teacher's RenderGoTemplate escape hatch. Unknown plain placeholders
// are left in place rather than erroring, so a prompt author can add an
// optional argument without breaking existing callers; Go-template mode
// requires every referenced key to be present.
func Render(tmpl string, args map[string]string) (string, error) {
	if isPlainSubstitution(tmpl) {
		return renderPlain(tmpl, args), nil
	}
	return renderGo(tmpl, args)
}

func renderPlain(tmpl string, args map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := variablePattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		if v, ok := args[sub[1]]; ok {
			return v
		}
		return match
	})
}

func renderGo(tmpl string, args map[string]string) (string, error) {
	t, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", gwerr.Wrap(gwerr.KindInvalid, err, "invalid prompt template")
	}
	data := make(map[string]any, len(args))
	for k, v := range args {
		data[k] = v
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", gwerr.Wrap(gwerr.KindInvalid, err, "rendering prompt template")
	}
	return buf.String(), nil
}

// ExtractVariables returns the set of {{ name }} placeholders referenced by
// a plain-substitution template, in order of first appearance.
func ExtractVariables(tmpl string) []string {
	matches := variablePattern.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) == 2 && !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
