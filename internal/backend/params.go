package backend

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/vecbench/internal/models"
)

// Params holds backend tuning parameters for one configuration.
type Params map[string]any

// Label renders params as a stable "key=value,..." string. Empty params render as "default".
func (p Params) Label() string {
	if len(p) == 0 {
		return "default"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ",")
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func rejected(key string, want ParamKind, v any) error {
	return fmt.Errorf("%w: parameter %q: want %s, got %T(%v)", models.ErrConfigRejected, key, want, v, v)
}

func (p Params) check(key string, kind ParamKind) error {
	var err error
	switch kind {
	case ParamInt:
		_, err = p.Int(key, 0)
	case ParamFloat:
		_, err = p.Float(key, 0)
	case ParamBool:
		_, err = p.Bool(key, false)
	case ParamString:
		_, err = p.String(key, "")
	case ParamDuration:
		_, err = p.Duration(key, 0)
	}
	return err
}

// Int returns an integer parameter or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, rejected(key, ParamInt, v)
		}
		return int(n), nil
	default:
		return 0, rejected(key, ParamInt, v)
	}
}

// Float returns a float parameter or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, rejected(key, ParamFloat, v)
	}
}

// Bool returns a boolean parameter or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, rejected(key, ParamBool, v)
	}
	return b, nil
}

// String returns a string parameter or def when absent.
func (p Params) String(key string, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", rejected(key, ParamString, v)
	}
	return s, nil
}

// Duration returns a duration parameter ("250ms") or def when absent.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, rejected(key, ParamDuration, v)
		}
		return parsed, nil
	default:
		return 0, rejected(key, ParamDuration, v)
	}
}

// Connection carries a backend's endpoint and credential settings. Values may
// reference environment variables as ${VAR}.
type Connection map[string]string

// Get returns the expanded value for key, or def when unset or empty.
func (c Connection) Get(key, def string) string {
	v, ok := c[key]
	if !ok {
		return def
	}
	v = os.ExpandEnv(v)
	if v == "" {
		return def
	}
	return v
}
