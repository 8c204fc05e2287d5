package schema

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type (
	fileSchemas struct {
		Schemas []fileSchema `yaml:"schemas"`
	}

	fileSchema struct {
		Name     string       `yaml:"name"`
		Table    string       `yaml:"table,omitempty"`
		Previous string       `yaml:"renamedFrom,omitempty"`
		Columns  []fileColumn `yaml:"columns"`
	}

	fileColumn struct {
		Name        string           `yaml:"name"`
		Type        string           `yaml:"type"`
		Nullable    *bool            `yaml:"nullable,omitempty"`
		Length      int              `yaml:"length,omitempty"`
		Identity    bool             `yaml:"identity,omitempty"`
		Previous    string           `yaml:"renamedFrom,omitempty"`
		Association *fileAssociation `yaml:"association,omitempty"`
	}

	fileAssociation struct {
		Name   string `yaml:"name"`
		Schema string `yaml:"schema"`
		Key    string `yaml:"key,omitempty"`
	}
)

// LoadFile reads a YAML schema file and returns a validated registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schema file")
	}
	return Parse(data)
}

// Parse decodes a YAML schema document and returns a validated registry.
//
// Columns are nullable unless they set nullable: false or are identity
// columns. An association without a name is named after its target schema.
func Parse(data []byte) (*Registry, error) {
	var doc fileSchemas
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse schema file")
	}

	reg := &Registry{}
	for _, fs := range doc.Schemas {
		s := &Schema{
			Name:     fs.Name,
			Table:    fs.Table,
			Previous: fs.Previous,
		}
		for _, fc := range fs.Columns {
			c := &Column{
				Name:     fc.Name,
				Type:     ColumnType(fc.Type),
				Nullable: !fc.Identity,
				Length:   fc.Length,
				Identity: fc.Identity,
				Previous: fc.Previous,
			}
			if fc.Nullable != nil {
				c.Nullable = *fc.Nullable && !fc.Identity
			}
			if fc.Association != nil {
				name := fc.Association.Name
				if name == "" {
					name = fc.Association.Schema
				}
				c.Association = &Association{
					Name:      name,
					Target:    fc.Association.Schema,
					TargetKey: fc.Association.Key,
				}
			}
			s.Columns = append(s.Columns, c)
		}
		if err := reg.Add(s); err != nil {
			return nil, err
		}
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
