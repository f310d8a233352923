// Package resources contains the catalog of the resources that filtering rules
// refer to: redirect payloads and scriptlet templates.
package resources

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/errors"
)

// ErrNotFound is returned when there is no resource with the requested name.
const ErrNotFound errors.Error = "resource not found"

// ErrNotTemplate is returned when a scriptlet refers to a resource that is not
// a template.
const ErrNotTemplate errors.Error = "resource is not a template"

// Kind is the kind of a resource.  In JSON it is either the string "template"
// or an object with the MIME type of the payload, {"mime": "text/plain"}.
type Kind struct {
	// MIME is the media type of a redirect payload.  It is empty for
	// templates.
	MIME string

	// Template is true if the resource is a scriptlet template.
	Template bool
}

// type check
var _ json.Unmarshaler = (*Kind)(nil)

// UnmarshalJSON implements the [json.Unmarshaler] interface for *Kind.
func (k *Kind) UnmarshalJSON(b []byte) (err error) {
	var s string
	if json.Unmarshal(b, &s) == nil {
		if s != "template" {
			return fmt.Errorf("unknown resource kind %q", s)
		}

		*k = Kind{Template: true}

		return nil
	}

	var obj struct {
		MIME string `json:"mime"`
	}

	err = json.Unmarshal(b, &obj)
	if err != nil {
		return fmt.Errorf("resource kind: %w", err)
	} else if obj.MIME == "" {
		return errors.Error("resource kind: empty mime")
	}

	*k = Kind{MIME: obj.MIME}

	return nil
}

// type check
var _ json.Marshaler = Kind{}

// MarshalJSON implements the [json.Marshaler] interface for Kind.
func (k Kind) MarshalJSON() (b []byte, err error) {
	if k.Template {
		return json.Marshal("template")
	}

	return json.Marshal(map[string]string{"mime": k.MIME})
}

// Resource is a single catalog entry.
type Resource struct {
	// Name is the name rules use to refer to the resource.
	Name string `json:"name"`

	// Aliases are the alternative names of the resource.
	Aliases []string `json:"aliases,omitempty"`

	// Kind is the kind of the resource.
	Kind Kind `json:"kind"`

	// Content is the base64-encoded payload.
	Content string `json:"content"`
}

// Catalog is an immutable set of resources indexed by their names and
// aliases.
type Catalog struct {
	byName    map[string]*Resource
	resources []*Resource
}

// Empty returns a catalog without resources.
func Empty() (c *Catalog) {
	return &Catalog{
		byName: map[string]*Resource{},
	}
}

// Parse parses a JSON array of resources.  The contents of every resource
// must be valid base64.  Later entries override the names and aliases of the
// earlier ones.
func Parse(data []byte) (c *Catalog, err error) {
	var rs []*Resource
	err = json.Unmarshal(data, &rs)
	if err != nil {
		return nil, fmt.Errorf("parsing resources: %w", err)
	}

	c = &Catalog{
		byName:    make(map[string]*Resource, len(rs)),
		resources: make([]*Resource, 0, len(rs)),
	}

	for i, r := range rs {
		if r == nil || r.Name == "" {
			return nil, fmt.Errorf("resource at index %d: empty name", i)
		}

		_, err = base64.StdEncoding.DecodeString(r.Content)
		if err != nil {
			return nil, fmt.Errorf("resource %q: content: %w", r.Name, err)
		}

		c.resources = append(c.resources, r)
		c.byName[r.Name] = r
		for _, a := range r.Aliases {
			c.byName[a] = r
		}
	}

	return c, nil
}

// Len returns the number of resources in the catalog.
func (c *Catalog) Len() (n int) {
	return len(c.resources)
}

// Get returns the resource with the given name or alias.  Scriptlet names
// are often written without the ".js" suffix, so it is tried as well.
func (c *Catalog) Get(name string) (r *Resource, ok bool) {
	r, ok = c.byName[name]
	if !ok && !strings.HasSuffix(name, ".js") {
		r, ok = c.byName[name+".js"]
	}

	return r, ok
}

// RedirectDataURL returns the data: URL with the payload of the redirect
// resource with the given name.
func (c *Catalog) RedirectDataURL(name string) (u string, err error) {
	r, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("redirect %q: %w", name, ErrNotFound)
	}

	mime := r.Kind.MIME
	if r.Kind.Template {
		mime = "application/javascript"
	}

	return "data:" + mime + ";base64," + r.Content, nil
}

// Scriptlet renders the template of the scriptlet call s.  The "{{1}}",
// "{{2}}", etc. placeholders are replaced with the escaped arguments, the
// placeholders without a corresponding argument are removed.
func (c *Catalog) Scriptlet(s *rules.Scriptlet) (script string, err error) {
	r, ok := c.Get(s.Name)
	if !ok {
		return "", fmt.Errorf("scriptlet %q: %w", s.Name, ErrNotFound)
	} else if !r.Kind.Template {
		return "", fmt.Errorf("scriptlet %q: %w", s.Name, ErrNotTemplate)
	}

	tmpl, err := base64.StdEncoding.DecodeString(r.Content)
	if err != nil {
		// Should not happen, since the content is validated in Parse.
		return "", fmt.Errorf("scriptlet %q: %w", s.Name, err)
	}

	return render(string(tmpl), s.Args), nil
}

// render replaces the numbered placeholders in tmpl.
func render(tmpl string, args []string) (script string) {
	var sb strings.Builder
	for {
		start := strings.Index(tmpl, "{{")
		if start == -1 {
			break
		}

		end := strings.Index(tmpl[start:], "}}")
		if end == -1 {
			break
		}

		end += start
		n, err := strconv.Atoi(tmpl[start+2 : end])
		if err != nil || n < 1 {
			sb.WriteString(tmpl[:start+2])
			tmpl = tmpl[start+2:]

			continue
		}

		sb.WriteString(tmpl[:start])
		if n <= len(args) {
			sb.WriteString(escapeArg(args[n-1]))
		}

		tmpl = tmpl[end+2:]
	}

	sb.WriteString(tmpl)

	return sb.String()
}

// escaper escapes the scriptlet arguments so that they can be put inside a
// JavaScript string literal.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

// escapeArg escapes a scriptlet argument.
func escapeArg(arg string) (escaped string) {
	return escaper.Replace(arg)
}
