package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"shelltree/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
)

// LanguageBash identifies the shell grammar.
const LanguageBash = "bash"

// LanguageSpec describes how paths and file heads map onto a grammar.
type LanguageSpec struct {
	Name         string
	Enabled      bool
	Extensions   []string
	Filenames    []string
	Interpreters []string
}

// LanguageOverride adjusts a default LanguageSpec. Nil or empty fields keep
// the default.
type LanguageOverride struct {
	Enabled    *bool
	Extensions []string
	Filenames  []string
}

// DefaultLanguageRegistry returns the built-in language table.
func DefaultLanguageRegistry() map[string]LanguageSpec {
	return map[string]LanguageSpec{
		LanguageBash: {
			Name:         LanguageBash,
			Enabled:      true,
			Extensions:   []string{".sh", ".bash"},
			Filenames:    []string{".bashrc", ".bash_profile", ".bash_logout", ".profile"},
			Interpreters: []string{"bash", "sh"},
		},
	}
}

// BuildLanguageRegistry applies overrides to the default table. Unknown
// languages and extensions claimed twice are rejected.
func BuildLanguageRegistry(overrides map[string]LanguageOverride) (map[string]LanguageSpec, error) {
	registry := DefaultLanguageRegistry()
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		spec, ok := registry[name]
		if !ok {
			return nil, errors.New(errors.CodeNotSupported, fmt.Sprintf("unknown language override: %s", name))
		}
		o := overrides[name]
		if o.Enabled != nil {
			spec.Enabled = *o.Enabled
		}
		if len(o.Extensions) > 0 {
			spec.Extensions = normalizeExtensions(o.Extensions)
		}
		if len(o.Filenames) > 0 {
			spec.Filenames = append([]string(nil), o.Filenames...)
		}
		registry[name] = spec
	}

	owner := make(map[string]string)
	for _, name := range slices.Sorted(maps.Keys(registry)) {
		spec := registry[name]
		if !spec.Enabled {
			continue
		}
		for _, ext := range spec.Extensions {
			if prev, dup := owner[ext]; dup {
				return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("extension %s claimed by both %s and %s", ext, prev, name))
			}
			owner[ext] = name
		}
	}
	return registry, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// GrammarLoader owns the compiled grammars and the path lookup tables.
type GrammarLoader struct {
	languages    map[string]*sitter.Language
	registry     map[string]LanguageSpec
	extensions   map[string]string
	filenames    map[string]string
	interpreters map[string]string
}

// NewGrammarLoader loads the default registry.
func NewGrammarLoader() *GrammarLoader {
	gl, err := NewGrammarLoaderWithRegistry(DefaultLanguageRegistry())
	if err != nil {
		// The default table only names compiled-in grammars.
		panic(err)
	}
	return gl
}

func NewGrammarLoaderWithRegistry(registry map[string]LanguageSpec) (*GrammarLoader, error) {
	if registry == nil {
		registry = DefaultLanguageRegistry()
	}
	gl := &GrammarLoader{
		languages:    make(map[string]*sitter.Language),
		registry:     make(map[string]LanguageSpec, len(registry)),
		extensions:   make(map[string]string),
		filenames:    make(map[string]string),
		interpreters: make(map[string]string),
	}

	for _, name := range slices.Sorted(maps.Keys(registry)) {
		spec := cloneLanguageSpec(registry[name])
		gl.registry[name] = spec
		if !spec.Enabled {
			continue
		}
		switch name {
		case LanguageBash:
			gl.languages[name] = sitter.NewLanguage(tree_sitter_bash.Language())
		default:
			return nil, errors.New(errors.CodeNotSupported, fmt.Sprintf("language %q is enabled but no grammar is compiled in", name))
		}
		for _, ext := range spec.Extensions {
			gl.extensions[strings.ToLower(ext)] = name
		}
		for _, file := range spec.Filenames {
			gl.filenames[strings.ToLower(filepath.Base(file))] = name
		}
		for _, interp := range spec.Interpreters {
			gl.interpreters[interp] = name
		}
	}
	return gl, nil
}

// Language returns the compiled grammar for name.
func (gl *GrammarLoader) Language(name string) (*sitter.Language, error) {
	lang, ok := gl.languages[name]
	if !ok {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotSupported, "grammar not loaded"),
			errors.CtxLanguage, name,
		)
	}
	return lang, nil
}

// DetectLanguage resolves a language from the file name, then the
// extension, then a "#!" line in head. It returns "" when nothing matches.
func (gl *GrammarLoader) DetectLanguage(path string, head []byte) string {
	base := strings.ToLower(filepath.Base(path))
	if lang, ok := gl.filenames[base]; ok {
		return lang
	}
	if lang, ok := gl.extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return gl.interpreters[shebangInterpreter(head)]
}

// IsSupportedPath reports whether path maps to a loaded grammar by name or
// extension alone.
func (gl *GrammarLoader) IsSupportedPath(path string) bool {
	return gl.DetectLanguage(path, nil) != ""
}

func (gl *GrammarLoader) SupportedExtensions() []string {
	return slices.Sorted(maps.Keys(gl.extensions))
}

func (gl *GrammarLoader) SupportedFilenames() []string {
	return slices.Sorted(maps.Keys(gl.filenames))
}

// LanguageRegistry returns a deep copy of the registry the loader was built
// from.
func (gl *GrammarLoader) LanguageRegistry() map[string]LanguageSpec {
	return cloneLanguageRegistry(gl.registry)
}

// shebangInterpreter returns the interpreter base name of a "#!" line,
// looking through "env".
func shebangInterpreter(head []byte) string {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return ""
	}
	line, _, _ := bufio.NewReader(bytes.NewReader(head[2:])).ReadLine()
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "-") {
				continue
			}
			return filepath.Base(f)
		}
		return ""
	}
	return interp
}
