package service

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//JSONConfig implements Config over a JSON document. Nested objects become
//nested sections.
type JSONConfig struct {
	raw  jsoniter.RawMessage
	tree map[string]jsoniter.RawMessage
}

//NewJSONConfig parses data as a JSON object.
func NewJSONConfig(data []byte) (*JSONConfig, error) {
	cfg := &JSONConfig{raw: data}

	if err := json.Unmarshal(data, &cfg.tree); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return cfg, nil
}

func (c *JSONConfig) Get(name string) Config {
	raw, ok := c.tree[name]
	if !ok {
		return nil
	}

	sub := &JSONConfig{raw: raw}

	//a scalar section still supports Unmarshal; Get then finds nothing
	_ = json.Unmarshal(raw, &sub.tree)

	return sub
}

func (c *JSONConfig) Unmarshal(out interface{}) error {
	return json.Unmarshal(c.raw, out)
}
