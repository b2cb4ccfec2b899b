package utils

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a convenience wrapper for pulling out typed information from a map.
type AttributeMap map[string]interface{}

// Has returns whether or not the given name is in the attributes.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String attempts to return a string present in the map with the given name; returns an empty
// string otherwise.
func (am AttributeMap) String(name string) string {
	if s, ok := am[name].(string); ok {
		return s
	}
	return ""
}

// ParseAttributes turns a list of key=value pairs into an AttributeMap. Values stay strings;
// typed decoding happens in TransformAttributeMapToStruct.
func ParseAttributes(pairs []string) (AttributeMap, error) {
	am := make(AttributeMap, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("attribute %q must be of the form key=value", pair)
		}
		am[key] = strings.TrimSpace(value)
	}
	return am, nil
}

// Merge returns a new map holding the attributes of am overridden by those of other.
func (am AttributeMap) Merge(other AttributeMap) AttributeMap {
	merged := make(AttributeMap, len(am)+len(other))
	for k, v := range am {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// TransformAttributeMapToStruct decodes the attributes into the given struct pointer using its
// json tags. String values are weakly converted so command line attributes decode into numeric
// and boolean fields.
func TransformAttributeMapToStruct(to interface{}, attributes AttributeMap) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           to,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return errors.Wrap(err, "error decoding attributes")
	}
	return nil
}
