package fields

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlDecl accepts either a bare id or a mapping:
//
//	thetext: 8
//	thedate: {fid: 7, type: date}
type yamlDecl struct {
	FID  int    `yaml:"fid"`
	Type string `yaml:"type"`
}

func (d *yamlDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&d.FID)
	}
	type plain yamlDecl
	return node.Decode((*plain)(d))
}

// LoadYAML reads field declarations from a YAML mapping of field name to
// id or {fid, type}. Recognized types are "date" and "numeric"; custom
// converters can only be declared in code.
func LoadYAML(r io.Reader) (*Registry, error) {
	var raw map[string]yamlDecl
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Empty(), nil
		}
		return nil, fmt.Errorf("decode field declarations: %w", err)
	}

	decls := make(map[string]Decl, len(raw))
	for name, d := range raw {
		switch d.Type {
		case "", "text", "plain":
			decls[name] = Bare(d.FID)
		case "date":
			decls[name] = Date(d.FID)
		case "numeric":
			decls[name] = Numeric(d.FID)
		default:
			return nil, fmt.Errorf("field %q: unknown type %q", name, d.Type)
		}
	}

	return NewRegistry(decls)
}
