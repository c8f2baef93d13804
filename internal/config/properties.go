package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/magiconair/properties"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// propertiesCodec reads and writes Java-style .properties files. Dotted
// keys become nested maps, so "crawler.maxPages" is found under
// KeyMaxPages like any other source.
type propertiesCodec struct{}

var _ viper.Codec = propertiesCodec{}

func (propertiesCodec) Decode(b []byte, v map[string]any) error {
	p, err := properties.Load(b, properties.UTF8)
	if err != nil {
		return fmt.Errorf("failed to parse properties: %w", err)
	}

	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		path := strings.Split(key, ".")
		m := v
		for _, part := range path[:len(path)-1] {
			next, ok := m[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[part] = next
			}
			m = next
		}
		m[path[len(path)-1]] = value
	}
	return nil
}

func (propertiesCodec) Encode(v map[string]any) ([]byte, error) {
	flat := make(map[string]string)
	flatten("", v, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := properties.NewProperties()
	for _, k := range keys {
		if _, _, err := p.Set(k, flat[k]); err != nil {
			return nil, fmt.Errorf("failed to set property %s: %w", k, err)
		}
	}

	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, val := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := val.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []string:
			out[key] = strings.Join(val, ",")
		default:
			out[key] = cast.ToString(val)
		}
	}
}

func newCodecRegistry() *viper.DefaultCodecRegistry {
	r := viper.NewCodecRegistry()
	// DefaultCodecRegistry.RegisterCodec does not fail.
	_ = r.RegisterCodec("properties", propertiesCodec{})
	return r
}
