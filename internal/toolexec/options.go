package toolexec

import (
	"github.com/spf13/cast"

	"omnitool/internal/domain"
)

// optString returns opts[key] as a string, or def when absent or not coercible.
func optString(opts domain.Options, key, def string) string {
	v, ok := opts[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// optUint accepts ints, whole floats and numeric strings; negatives fall back to def.
func optUint(opts domain.Options, key string, def int) int {
	v, ok := opts[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func optBool(opts domain.Options, key string, def bool) bool {
	v, ok := opts[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}
