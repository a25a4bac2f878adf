package inventory

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// StringOrList accepts either a bare scalar string or a YAML sequence of
// strings, normalizing to a list at unmarshal time so downstream code never
// has to branch on the runtime shape. This is the "duck-typed" inventory
// value DESIGN NOTES (spec.md section 9) calls for: repos, trunk/branches/tags
// and similar fields may be written either way in the inventory file.
type StringOrList []string

// UnmarshalYAML implements the normalize-once-at-load contract.
func (s *StringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		if single == "" {
			*s = nil
			return nil
		}
		*s = StringOrList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringOrList(list)
		return nil
	default:
		*s = nil
		return nil
	}
}

// BoolOrString accepts a YAML boolean or a string that strconv.ParseBool
// accepts ("1", "t", "true", "0", "f", "false" and their upper-case forms),
// normalizing to a plain bool. bare-clone is the inventory field that needs
// this: some authors write `bare-clone: true`, others `bare-clone: "true"`.
type BoolOrString struct {
	Value bool
	// Set records whether the field was present at all, so callers can
	// distinguish "absent, use default" from "explicitly false".
	Set bool
}

// UnmarshalYAML implements the normalize-once-at-load contract.
func (b *BoolOrString) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var asBool bool
		if err := value.Decode(&asBool); err == nil {
			b.Value, b.Set = asBool, true
			return nil
		}
		var asString string
		if err := value.Decode(&asString); err != nil {
			return err
		}
		parsed, err := strconv.ParseBool(asString)
		if err != nil {
			return err
		}
		b.Value, b.Set = parsed, true
		return nil
	default:
		b.Set = false
		return nil
	}
}
