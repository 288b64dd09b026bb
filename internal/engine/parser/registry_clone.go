package parser

func cloneLanguageSpec(spec LanguageSpec) LanguageSpec {
	spec.Extensions = append([]string(nil), spec.Extensions...)
	spec.Filenames = append([]string(nil), spec.Filenames...)
	spec.Interpreters = append([]string(nil), spec.Interpreters...)
	return spec
}

func cloneLanguageRegistry(in map[string]LanguageSpec) map[string]LanguageSpec {
	out := make(map[string]LanguageSpec, len(in))
	for name, spec := range in {
		out[name] = cloneLanguageSpec(spec)
	}
	return out
}
