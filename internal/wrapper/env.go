package wrapper

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
)

// EnvPolicy describes how the child's environment is derived from the wrapper's.
type EnvPolicy struct {
	// Inherit keeps the whole base environment. Otherwise only KeepVars survive.
	Inherit bool
	// PathPrepend entries are placed in front of PATH, in order.
	PathPrepend []string
	// Overrides are KEY=VALUE pairs applied last.
	Overrides []string
}

// KeepVars survive when the environment is not inherited.
var KeepVars = []string{"PATH", "HOME", "TMPDIR", "TEMP", "TMP", "SystemRoot"}

// BuildEnv applies p to base (usually os.Environ()) and returns a sorted KEY=VALUE list.
// Later sources win: base, then PATH prefix, then overrides.
func BuildEnv(base []string, p EnvPolicy) ([]string, error) {
	env := newEnvMap()

	keep := make(map[string]bool, len(KeepVars))
	for _, k := range KeepVars {
		keep[normalizeKey(k)] = true
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		if !p.Inherit && !keep[normalizeKey(k)] {
			continue
		}
		env.set(k, v)
	}

	if len(p.PathPrepend) > 0 {
		key, current := env.lookup("PATH")
		parts := append([]string(nil), p.PathPrepend...)
		if current != "" {
			parts = append(parts, current)
		}
		env.set(key, strings.Join(parts, string(os.PathListSeparator)))
	}

	for _, kv := range p.Overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid env override %q (want KEY=VALUE)", kv)
		}
		env.set(k, v)
	}

	return env.slice(), nil
}

// envMap keeps the first-seen spelling of each key. Keys compare
// case-insensitively on Windows, where Path and PATH are the same variable.
type envMap struct {
	names  map[string]string
	values map[string]string
}

func newEnvMap() *envMap {
	return &envMap{names: make(map[string]string), values: make(map[string]string)}
}

func normalizeKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}

func (m *envMap) set(k, v string) {
	nk := normalizeKey(k)
	if _, ok := m.names[nk]; !ok {
		m.names[nk] = k
	}
	m.values[nk] = v
}

func (m *envMap) lookup(k string) (string, string) {
	nk := normalizeKey(k)
	if name, ok := m.names[nk]; ok {
		return name, m.values[nk]
	}
	return k, ""
}

func (m *envMap) slice() []string {
	out := make([]string, 0, len(m.values))
	for nk, v := range m.values {
		out = append(out, m.names[nk]+"="+v)
	}
	sort.Strings(out)
	return out
}
