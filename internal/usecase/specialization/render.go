package specialization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// Render substitutes {name} placeholders in tmpl from vars. "{{" and "}}"
// render as literal braces. A placeholder with no value is an error.
func Render(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	var missing []string
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated placeholder at offset %d", domain.ErrConfiguration, i)
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if name == "" {
				return "", fmt.Errorf("%w: empty placeholder at offset %d", domain.ErrConfiguration, i)
			}
			v, ok := vars[name]
			if !ok {
				missing = append(missing, name)
			}
			b.WriteString(v)
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("%w: unmatched '}' at offset %d", domain.ErrConfiguration, i)
		default:
			b.WriteByte(c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: unresolved template placeholders: %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return b.String(), nil
}

// templateVars is the variable set every instruction template can reference.
// User vars are applied last and may override the built-ins.
func templateVars(cfg domain.AgentConfig) map[string]string {
	vars := map[string]string{
		"cloud_provider":       string(cfg.Provider),
		"cloud_provider_title": cfg.Provider.Title(),
		"specialization":       string(cfg.Specialization),
		"specialization_title": cfg.Specialization.Title(),
		"default_region":       cfg.Region(),
	}
	for k, v := range cfg.TemplateVars {
		vars[k] = v
	}
	return vars
}

// Probe renders tmpl against a sample variable set so that a template with a
// placeholder nobody will ever supply is rejected at configuration time.
func Probe(cfg domain.AgentConfig) error {
	if cfg.InstructionTemplate == "" {
		return nil
	}
	probe := cfg
	if !probe.Provider.Valid() {
		probe.Provider = domain.CloudAWS
	}
	if probe.Specialization == "" {
		probe.Specialization = domain.SpecGeneral
	}
	_, err := Render(cfg.InstructionTemplate, templateVars(probe))
	return err
}
