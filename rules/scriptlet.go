package rules

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// Scriptlet is a parsed scriptlet call of a "##+js(name, args...)" rule.
type Scriptlet struct {
	// Name is the name of the scriptlet resource, as written in the rule.
	Name string

	// Args are the unquoted arguments.
	Args []string
}

// ParseScriptlet parses a "+js(name, args...)" call.  Arguments are separated
// by commas, "\," escapes a comma and a matching pair of quotes around an
// argument is removed.
func ParseScriptlet(call string) (s *Scriptlet, err error) {
	inner, ok := strings.CutPrefix(call, scriptletPrefix)
	if !ok {
		return nil, fmt.Errorf("no %q prefix", scriptletPrefix)
	}

	inner, ok = strings.CutSuffix(inner, scriptletSuffix)
	if !ok {
		return nil, fmt.Errorf("no closing %q", scriptletSuffix)
	}

	parts := splitWithEscapeCharacter(inner, ',', escapeCharacter, true)
	if len(parts) == 0 {
		return nil, errors.Error("empty scriptlet call")
	}

	s = &Scriptlet{
		Name: unquote(strings.TrimSpace(parts[0])),
	}

	if s.Name == "" {
		return nil, errors.Error("empty scriptlet name")
	}

	for _, arg := range parts[1:] {
		s.Args = append(s.Args, unquote(strings.TrimSpace(arg)))
	}

	return s, nil
}

// String implements the fmt.Stringer interface for *Scriptlet.  The result is
// the normalized call used to match scriptlet exceptions.
func (s *Scriptlet) String() (str string) {
	var sb strings.Builder
	sb.WriteString(s.Name)
	for _, arg := range s.Args {
		sb.WriteString(", ")
		sb.WriteString(strings.ReplaceAll(arg, ",", `\,`))
	}

	return sb.String()
}

// unquote removes a matching pair of single or double quotes around s.
func unquote(s string) (unquoted string) {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}

	return s
}

// Scriptlet returns the parsed scriptlet call of a scriptlet rule.
func (f *CosmeticRule) Scriptlet() (s *Scriptlet, err error) {
	if f.Type != CosmeticScriptlet {
		return nil, errors.Error("not a scriptlet rule")
	}

	return ParseScriptlet(scriptletPrefix + f.Content + scriptletSuffix)
}
