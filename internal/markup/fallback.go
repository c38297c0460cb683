// Package markup normalizes the four input dialects (SSML-lite, emotion tags,
// dialogue scripts and SFX tags) into ordered segments plus warnings.
package markup

import "github.com/ent0n29/soundboard/internal/speech"

// fallbacks collects warnings for one parse. Keyed warnings are emitted at most
// once per key.
type fallbacks struct {
	list []speech.Warning
	seen map[string]bool
}

func (f *fallbacks) warn(code speech.WarningCode, format string, args ...any) {
	f.list = append(f.list, speech.Warnf(code, format, args...))
}

func (f *fallbacks) warnOnce(key string, code speech.WarningCode, format string, args ...any) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	k := string(code) + "\x00" + key
	if f.seen[k] {
		return
	}
	f.seen[k] = true
	f.warn(code, format, args...)
}

func (f *fallbacks) warnings() []speech.Warning {
	if f.list == nil {
		return []speech.Warning{}
	}
	return f.list
}

// resolveOr is the shared match, validate, resolve-or-warn step: lookup(key)
// wins when it succeeds, otherwise warn is called and fallback supplies the value.
func resolveOr[T any](key string, lookup func(string) (T, bool), warn func(), fallback func() T) (T, bool) {
	if v, ok := lookup(key); ok {
		return v, true
	}
	if warn != nil {
		warn()
	}
	return fallback(), false
}
