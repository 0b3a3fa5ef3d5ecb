package topology

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pelletier/go-toml/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"
)

// Document is a declarative topology description: one space and its shards.
type Document struct {
	Space  SpaceConfig   `yaml:"space" toml:"space" json:"space"`
	Shards []ShardConfig `yaml:"shards" toml:"shards" json:"shards"`
}

// LoadDocument reads a topology document from path.
//
// The format is chosen by extension:
//   - .yaml, .yml: YAML
//   - .toml: TOML
//   - .hcl: HCL (space and shard blocks, see ParseHCL)
//
// Unknown fields are rejected in every format, so documents using the
// older shape (sid, scope, an entries function) fail to load.
func LoadDocument(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".hcl" {
		return loadHCL(path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from node configuration
	if err != nil {
		return nil, fmt.Errorf("reading topology document: %w", err)
	}

	switch ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported topology document extension %q", ErrValidation, ext)
	}
}

// ParseYAML decodes a YAML topology document.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: topology document is empty", ErrValidation)
		}
		return nil, fmt.Errorf("%w: parsing YAML topology: %w", ErrValidation, err)
	}
	return &doc, nil
}

// ParseTOML decodes a TOML topology document.
func ParseTOML(data []byte) (*Document, error) {
	var doc Document
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parsing TOML topology: %w", ErrValidation, err)
	}
	return &doc, nil
}

// hclDocument is the HCL shape of a Document:
//
//	space "example.org" {
//	  home  = "dvb"
//	  peers = { player = "ws://10.0.0.1:4431" }
//	}
//
//	shard "dvb" {
//	  id     = 8
//	  schema = "1.0"
//	  home   = "dvb"
//
//	  upgrade "add-streamer" {
//	    entry "dvbstreamer" {
//	      kind  = "dvblast"
//	      attrs = { name = "DVBlast" }
//	    }
//	  }
//	}
type hclDocument struct {
	Space  hclSpace   `hcl:"space,block"`
	Shards []hclShard `hcl:"shard,block"`
}

type hclSpace struct {
	Name  string            `hcl:"name,label"`
	Home  string            `hcl:"home"`
	Peers map[string]string `hcl:"peers,optional"`
}

type hclShard struct {
	Alias    string       `hcl:"alias,label"`
	ID       int          `hcl:"id"`
	Schema   string       `hcl:"schema"`
	Home     string       `hcl:"home"`
	Upgrades []hclUpgrade `hcl:"upgrade,block"`
}

type hclUpgrade struct {
	Name    string     `hcl:"name,label"`
	Step    string     `hcl:"step,optional"`
	Entries []hclEntry `hcl:"entry,block"`
}

type hclEntry struct {
	Alias string    `hcl:"alias,label"`
	Kind  string    `hcl:"kind"`
	Attrs cty.Value `hcl:"attrs,optional"`
}

func loadHCL(path string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parsing HCL topology %s: %w", ErrValidation, path, diags)
	}
	return decodeHCL(file.Body, path)
}

// ParseHCL decodes an HCL topology document. filename is used in diagnostics.
func ParseHCL(data []byte, filename string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parsing HCL topology %s: %w", ErrValidation, filename, diags)
	}
	return decodeHCL(file.Body, filename)
}

func decodeHCL(body hcl.Body, filename string) (*Document, error) {
	var raw hclDocument
	if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("%w: decoding HCL topology %s: %w", ErrValidation, filename, diags)
	}

	doc := &Document{
		Space: SpaceConfig{
			Name:  raw.Space.Name,
			Home:  raw.Space.Home,
			Peers: raw.Space.Peers,
		},
		Shards: make([]ShardConfig, 0, len(raw.Shards)),
	}
	for _, s := range raw.Shards {
		shard := ShardConfig{
			ID:     s.ID,
			Alias:  s.Alias,
			Schema: s.Schema,
			Home:   s.Home,
		}
		for _, u := range s.Upgrades {
			upgrade := UpgradeConfig{Name: u.Name, Step: u.Step}
			for _, e := range u.Entries {
				attrs, err := ctyToAttrs(e.Attrs)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: shard %q upgrade %q entry %q: %w",
						ErrValidation, filename, s.Alias, u.Name, e.Alias, err)
				}
				upgrade.Entries = append(upgrade.Entries, EntryConfig{Alias: e.Alias, Kind: e.Kind, Attrs: attrs})
			}
			shard.Upgrades = append(shard.Upgrades, upgrade)
		}
		doc.Shards = append(doc.Shards, shard)
	}
	return doc, nil
}

// ctyToAttrs converts an HCL attrs value to an attribute map.
// An absent value yields nil.
func ctyToAttrs(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("attrs must be an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// ctyToNative recursively converts a cty.Value to its natural Go counterpart.
// Whole numbers become int64, other numbers float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			var i int64
			if err := gocty.FromCtyValue(v, &i); err == nil {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("converting number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
