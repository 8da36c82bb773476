package strategy

import "encoding/json"

// Params are the per-agent strategyParams from the agents config file.
type Params map[string]any

func (p Params) Float(key string, def float64) float64 {
	if p == nil {
		return def
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func (p Params) String(key, def string) string {
	if p == nil {
		return def
	}
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}
