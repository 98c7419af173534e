package tools

import (
	"context"
	"os"
	"strings"

	"github.com/go-go-golems/parley/pkg/blob"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// SpecSource returns the raw external tool catalogue, a YAML or JSON list of specs.
type SpecSource interface {
	FetchSpecs(ctx context.Context) ([]byte, error)
}

// FileSource reads the catalogue from a local file.
type FileSource string

func (f FileSource) FetchSpecs(context.Context) ([]byte, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, errors.Wrapf(err, "reading tool catalogue %s", string(f))
	}
	return b, nil
}

// BlobSource reads the catalogue from a blob key. A missing key is an empty catalogue.
type BlobSource struct {
	Store blob.Store
	Key   string
}

func (b BlobSource) FetchSpecs(ctx context.Context) ([]byte, error) {
	obj, err := b.Store.Get(ctx, b.Key)
	if err != nil {
		if blob.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading tool catalogue %s", b.Key)
	}
	return obj.Body, nil
}

const toolSpecSchema = `{
  "type": "object",
  "required": ["name", "description", "input_schema"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 64},
    "description": {"type": "string", "minLength": 1},
    "input_schema": {
      "type": "object",
      "required": ["type"],
      "properties": {"type": {"const": "object"}}
    }
  }
}`

var specSchemaLoader = gojsonschema.NewStringLoader(toolSpecSchema)

// Catalogue combines externally sourced specs with the registered tools.
// External specs win on name clashes, so their descriptions can be tuned
// without a rebuild.
type Catalogue struct {
	source   SpecSource
	registry ToolRegistry
}

func NewCatalogue(source SpecSource, registry ToolRegistry) *Catalogue {
	return &Catalogue{source: source, registry: registry}
}

// Load returns the current catalogue sorted by name. Malformed external
// entries are skipped with a warning.
func (c *Catalogue) Load(ctx context.Context) ([]ToolSpec, error) {
	byName := map[string]ToolSpec{}
	if c.registry != nil {
		for _, def := range c.registry.ListTools() {
			def := def
			spec, err := def.Spec()
			if err != nil {
				return nil, err
			}
			byName[spec.Name] = spec
		}
	}
	if c.source != nil {
		raw, err := c.source.FetchSpecs(ctx)
		if err != nil {
			return nil, err
		}
		specs, err := ParseSpecs(raw)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			byName[s.Name] = s
		}
	}
	ret := make([]ToolSpec, 0, len(byName))
	for _, s := range byName {
		ret = append(ret, s)
	}
	sortSpecs(ret)
	return ret, nil
}

// ParseSpecs decodes a YAML or JSON list of tool specs. Only an undecodable
// document is an error; invalid entries are logged and dropped.
func ParseSpecs(raw []byte) ([]ToolSpec, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var entries []any
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding tool catalogue")
	}
	ret := make([]ToolSpec, 0, len(entries))
	for i, entry := range entries {
		spec, err := parseSpec(entry)
		if err != nil {
			log.Warn().Err(err).Int("entry", i).Msg("skipping malformed tool spec")
			continue
		}
		ret = append(ret, spec)
	}
	return ret, nil
}

func parseSpec(entry any) (ToolSpec, error) {
	m, ok := normalizeYAML(entry).(map[string]any)
	if !ok {
		return ToolSpec{}, errors.Errorf("entry is %T, not a mapping", entry)
	}
	res, err := gojsonschema.Validate(specSchemaLoader, gojsonschema.NewGoLoader(m))
	if err != nil {
		return ToolSpec{}, errors.Wrap(err, "validating tool spec")
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return ToolSpec{}, errors.New(strings.Join(msgs, "; "))
	}
	return ToolSpec{
		Name:        CanonicalName(m["name"].(string)),
		Description: m["description"].(string),
		InputSchema: m["input_schema"].(map[string]any),
	}, nil
}

// normalizeYAML converts yaml.v3 decoded values into JSON-compatible ones.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.TrimSpace(toString(k))] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return float64(t)
	default:
		return v
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := yaml.Marshal(v)
	return strings.TrimSpace(string(b))
}
