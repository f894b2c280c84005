package grammar

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/FocuswithJustin/srcmark/core/errors"
)

// Registry maps language tags and file extensions to grammars. User
// extension registrations take precedence over the built-in table.
type Registry struct {
	mu         sync.RWMutex
	grammars   map[string]*Grammar // keyed by lower-cased tag
	extensions map[string]string   // extension without dot -> tag
	overrides  map[string]string
}

// NewRegistry returns a registry holding the built-in grammars.
func NewRegistry() *Registry {
	r := &Registry{
		grammars:   make(map[string]*Grammar),
		extensions: make(map[string]string),
		overrides:  make(map[string]string),
	}
	for _, g := range builtinGrammars() {
		r.Register(g)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds or replaces a grammar and its extensions.
func (r *Registry) Register(g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars[strings.ToLower(g.Language)] = g
	for _, ext := range g.Extensions {
		r.extensions[normalizeExt(ext)] = g.Language
	}
}

// Lookup returns the grammar for a language tag, ignoring case.
func (r *Registry) Lookup(language string) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grammars[strings.ToLower(language)]
	return g, ok
}

// Languages returns the registered language tags in sorted order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grammars))
	for _, g := range r.grammars {
		out = append(out, g.Language)
	}
	sort.Strings(out)
	return out
}

// RegisterExtension maps ext to language, overriding any default mapping.
func (r *Registry) RegisterExtension(ext, language string) error {
	g, ok := r.Lookup(language)
	if !ok {
		return errors.NewUnsupportedLanguage(language, "")
	}
	ext = normalizeExt(ext)
	if ext == "" {
		return errors.NewValidation("extension", "empty extension")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[ext] = g.Language
	return nil
}

// ParseExtensionMapping parses "ext=LANG" as accepted by --register-ext.
func (r *Registry) ParseExtensionMapping(mapping string) error {
	ext, language, ok := strings.Cut(mapping, "=")
	if !ok {
		return errors.NewValidation("register-ext", "expected ext=LANGUAGE, got "+mapping)
	}
	return r.RegisterExtension(strings.TrimSpace(ext), strings.TrimSpace(language))
}

// LanguageForFilename returns the language tag for a file name, or "" when
// the extension is unknown.
func (r *Registry) LanguageForFilename(name string) string {
	ext := normalizeExt(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if lang, ok := r.overrides[ext]; ok {
		return lang
	}
	if lang, ok := r.extensions[ext]; ok {
		return lang
	}
	// Extensions are matched case-sensitively first so .C can mean C++.
	if lang, ok := r.extensions[strings.ToLower(ext)]; ok {
		return lang
	}
	return ""
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.TrimSpace(ext), ".")
}

// Lookup returns a grammar from the default registry.
func Lookup(language string) (*Grammar, bool) {
	return defaultRegistry.Lookup(language)
}

// LanguageForFilename consults the default registry.
func LanguageForFilename(name string) string {
	return defaultRegistry.LanguageForFilename(name)
}
