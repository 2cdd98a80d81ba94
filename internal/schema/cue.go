package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// ParseCUE compiles a single CUE document and extracts its resources.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func ParseCUE(filename string, data []byte) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return schemaFromCUE(v)
}

// LoadCUEDir loads every CUE file of the package in dir.
func LoadCUEDir(dir string) (*Schema, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Field: "path", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Field: "path", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return schemaFromCUE(v)
}

func schemaFromCUE(v cue.Value) (*Schema, error) {
	s := &Schema{}

	resources := v.LookupPath(cue.ParsePath("resource"))
	if !resources.Exists() {
		return nil, &LoadError{Field: "resource", Message: "no resources declared", Pos: v.Pos()}
	}

	iter, err := resources.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		res, err := parseResource(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.Resources = append(s.Resources, res)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// parseResource reads one resource struct. Attributes may be a struct of
// name: type pairs or a list of names.
func parseResource(name string, v cue.Value) (Resource, error) {
	res := Resource{Name: name}

	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if !attrs.Exists() {
		return res, &LoadError{
			Field:   fmt.Sprintf("resource.%s.attributes", name),
			Message: "attributes are required",
			Pos:     v.Pos(),
		}
	}
	if attrs.IncompleteKind() == cue.StructKind {
		fields, err := attrs.Fields()
		if err != nil {
			return res, formatCUEError(err)
		}
		for fields.Next() {
			res.Attributes = append(res.Attributes, fields.Label())
		}
	} else {
		names, err := stringList(attrs)
		if err != nil {
			return res, err
		}
		res.Attributes = names
	}

	if key := v.LookupPath(cue.ParsePath("uniqueness_key")); key.Exists() {
		names, err := stringList(key)
		if err != nil {
			return res, err
		}
		res.UniquenessKey = names
	}

	if cons := v.LookupPath(cue.ParsePath("constraints")); cons.Exists() {
		list, err := cons.List()
		if err != nil {
			return res, formatCUEError(err)
		}
		for list.Next() {
			names, err := stringList(list.Value())
			if err != nil {
				return res, err
			}
			res.Constraints = append(res.Constraints, names)
		}
	}

	return res, nil
}

func stringList(v cue.Value) ([]string, error) {
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
