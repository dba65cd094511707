package conf

// DefaultConfig holds default values keyed by their flat config path.
type DefaultConfig map[string]any

// With returns a copy of d with the values of m added.
func (d DefaultConfig) With(m map[string]any) DefaultConfig {
	merged := make(DefaultConfig, len(d)+len(m))
	for key, val := range d {
		merged[key] = val
	}
	for key, val := range m {
		merged[key] = val
	}

	return merged
}

// MergeDefaults prefixes the keys of all maps with ns.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) M {
	fullCap := 0
	for _, m := range maps {
		fullCap += len(m)
	}

	merged := make(M, fullCap)
	for _, m := range maps {
		for key, val := range m {
			merged[ns+"."+key] = val
		}
	}

	return merged
}
