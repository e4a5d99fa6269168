package schema

import (
	json "github.com/goccy/go-json"

	js "github.com/reoring/datamodels/jsonschema"
)

// JSONSchema projects the descriptor into a JSON Schema representation.
func (d *Descriptor) JSONSchema() *js.Schema {
	out := fieldSchema(d.Root)
	out.ID = d.URI
	return out
}

// MarshalJSONSchema renders the projection as indented JSON.
func (d *Descriptor) MarshalJSONSchema() ([]byte, error) {
	return json.MarshalIndent(d.JSONSchema(), "", "  ")
}

func fieldSchema(f *Field) *js.Schema {
	if f == nil {
		return &js.Schema{}
	}
	s := &js.Schema{
		Ref:       f.Ref,
		Title:     f.Title,
		Type:      f.Type,
		Tag:       f.Tag,
		Enum:      f.Enum,
		Minimum:   f.Minimum,
		Maximum:   f.Maximum,
		MinLength: f.MinLength,
		MaxLength: f.MaxLength,
		Pattern:   f.Pattern,
		Datatype:  f.DataType,
		NDim:      f.NDim,
	}
	if f.HasDefault {
		s.Default = f.Default
	}
	if f.Items != nil {
		s.Items = fieldSchema(f.Items)
	}
	if f.Object != nil {
		if s.Type == "" {
			s.Type = TypeObject
		}
		s.Properties = make(map[string]*js.Schema, len(f.Object.Properties))
		for _, p := range f.Object.Properties {
			s.Properties[p.Name] = fieldSchema(p)
		}
		s.Required = f.Object.Required
		// Extra fields are accepted unless the document forbids them.
		s.AdditionalProperties = f.Object.AdditionalProperties
	}
	return s
}
