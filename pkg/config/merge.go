package config

// Merge returns base deep-merged with override. When both are mappings
// they merge key by key, recursively; in every other case override wins.
// Sequences are replaced as a whole. Neither input is modified.
func Merge(base, override Value) Value {
	if base.kind != KindMapping || override.kind != KindMapping {
		return override
	}

	out := base.m.Clone()
	for _, k := range override.m.keys {
		ov := override.m.values[k]
		if bv, ok := out.Get(k); ok {
			out.Set(k, Merge(bv, ov))
			continue
		}
		out.Set(k, ov)
	}
	return MappingValue(out)
}
