// Package catalog describes the operations the model may request: their
// parameters, the synonyms models tend to use for them, which fields are
// identifiers, booleans or dates, and JSON Schemas for structured values.
//
// The catalogue is a YAML document. The built-in one is embedded; a file can
// replace it at start-up.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrUnknownAction reports a name the catalogue does not define.
var ErrUnknownAction = errors.New("catalog: unknown action")

// Lookup marks a read-only action whose results resolve a free-text term to
// a record reference. Batch mode scores results on Label and keeps Ref.
type Lookup struct {
	Term  string `yaml:"term"`
	Label string `yaml:"label"`
	Ref   string `yaml:"ref"`
}

// Action is one catalogue entry.
type Action struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Mutating    bool              `yaml:"mutating"`
	Confirm     bool              `yaml:"confirm"`
	Params      map[string]string `yaml:"params"`
	Aliases     map[string]string `yaml:"aliases"`
	Rejected    map[string]string `yaml:"rejected"`
	Required    map[string]string `yaml:"required"`
	IDs         []string          `yaml:"ids"`
	Ints        map[string]int    `yaml:"ints"`
	Bools       []string          `yaml:"bools"`
	Dates       []string          `yaml:"dates"`
	Schemas     map[string]string `yaml:"schemas"`
	Lookup      *Lookup           `yaml:"lookup"`
	Batch       string            `yaml:"batch"`
	Example     string            `yaml:"example"`

	compiled map[string]*jsonschema.Schema
}

// ParamNames returns the declared parameter names in sorted order.
func (a *Action) ParamNames() []string {
	names := make([]string, 0, len(a.Params))
	for n := range a.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RequiredNames returns the required parameter names in sorted order.
func (a *Action) RequiredNames() []string {
	names := make([]string, 0, len(a.Required))
	for n := range a.Required {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ExampleTag renders the entry's example with the given tag keyword.
func (a *Action) ExampleTag(keyword string) string {
	ex := a.Example
	if ex == "" {
		ex = a.Name
	}
	return "[" + keyword + ":" + ex + "]"
}

// HasSchema reports whether param carries a JSON Schema.
func (a *Action) HasSchema(param string) bool {
	_, ok := a.compiled[param]
	return ok
}

// CheckParam validates v against the schema for param. Parameters without a
// schema always pass.
func (a *Action) CheckParam(param string, v action.Value) error {
	sch, ok := a.compiled[param]
	if !ok {
		return nil
	}
	if err := sch.Validate(action.ToAny(v)); err != nil {
		return fmt.Errorf("%s: %s", param, leafMessage(err))
	}
	return nil
}

// Catalog is an immutable, validated set of actions.
type Catalog struct {
	byName map[string]*Action
	names  []string
}

type document struct {
	Actions []*Action `yaml:"actions"`
}

// Load decodes and validates a catalogue document. Unknown YAML fields are
// errors.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	return build(doc.Actions)
}

// LoadFile reads a catalogue from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(bytes.NewReader(data))
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalogue.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Load(bytes.NewReader(defaultYAML))
	})
	return defaultCat, defaultErr
}

// MustDefault is Default for callers that treat a broken embedded catalogue
// as a programming error.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

func build(actions []*Action) (*Catalog, error) {
	if err := Validate(actions); err != nil {
		return nil, err
	}
	c := &Catalog{byName: make(map[string]*Action, len(actions))}
	for _, a := range actions {
		compiled, err := compileSchemas(a)
		if err != nil {
			return nil, fmt.Errorf("catalog: action %q: %w", a.Name, err)
		}
		a.compiled = compiled
		c.byName[a.Name] = a
		c.names = append(c.names, a.Name)
	}
	return c, nil
}

// Get returns the entry for name.
func (c *Catalog) Get(name string) (*Action, bool) {
	a, ok := c.byName[name]
	return a, ok
}

// Names returns action names in document order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// IsMutating reports whether name changes backend state. Unknown names are
// treated as read-only.
func (c *Catalog) IsMutating(name string) bool {
	a, ok := c.byName[name]
	return ok && a.Mutating
}

// LookupOf returns the lookup descriptor for name, or nil.
func (c *Catalog) LookupOf(name string) *Lookup {
	if a, ok := c.byName[name]; ok {
		return a.Lookup
	}
	return nil
}

// BatchTargets returns the mutating actions fed by the lookup action name,
// in document order.
func (c *Catalog) BatchTargets(lookup string) []string {
	var out []string
	for _, n := range c.names {
		if c.byName[n].Batch == lookup {
			out = append(out, n)
		}
	}
	return out
}

func compileSchemas(a *Action) (map[string]*jsonschema.Schema, error) {
	if len(a.Schemas) == 0 {
		return nil, nil
	}
	out := make(map[string]*jsonschema.Schema, len(a.Schemas))
	for param, src := range a.Schemas {
		url := a.Name + "." + param + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("schema for %q: %w", param, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema for %q: %w", param, err)
		}
		out[param] = sch
	}
	return out, nil
}

// leafMessage reduces a schema validation error to its most specific cause.
func leafMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		return ve.Message
	}
	return loc + ": " + ve.Message
}
