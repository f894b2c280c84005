// Package grammar holds the table of language grammars used by the codec.
//
// A grammar is a participle lexer plus a tree builder. Builders never drop
// input: every byte of the text ends up in exactly one text leaf, so the
// tree always reproduces the text it was built from. When a builder cannot
// continue it appends the rest of the text as one leaf and records a
// ParseRecoveryWarning.
package grammar

import (
	"fmt"

	"github.com/FocuswithJustin/srcmark/core/cpp"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
	"github.com/alecthomas/participle/v2/lexer"
)

type family int

const (
	familyC family = iota
	familyPython
)

// Grammar describes how to mark up one language.
type Grammar struct {
	Language   string
	Extensions []string
	// Preprocessor is set for languages with C-style # directives.
	Preprocessor bool

	family   family
	keywords map[string]bool
	lexer    *lexer.StatefulDefinition
	kinds    map[lexer.TokenType]tokenKind
}

func newGrammar(language string, fam family, preprocessor bool, exts []string, rules []lexer.SimpleRule, keywords string) (*Grammar, error) {
	def, err := lexer.NewSimple(rules)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", language, err)
	}
	kinds := make(map[lexer.TokenType]tokenKind)
	for name, tt := range def.Symbols() {
		kinds[tt] = ruleKinds[name]
	}
	return &Grammar{
		Language:     language,
		Extensions:   exts,
		Preprocessor: preprocessor,
		family:       fam,
		keywords:     words(keywords),
		lexer:        def,
		kinds:        kinds,
	}, nil
}

func mustGrammar(language string, fam family, preprocessor bool, exts []string, rules []lexer.SimpleRule, keywords string) *Grammar {
	g, err := newGrammar(language, fam, preprocessor, exts, rules, keywords)
	if err != nil {
		panic(err)
	}
	return g
}

// IsKeyword reports whether word is reserved in the language.
func (g *Grammar) IsKeyword(word string) bool {
	return g.keywords[word]
}

// Options control a single Build.
type Options struct {
	// Policies decide how inactive preprocessor branches are represented.
	Policies cpp.Policies
	// Positions adds pos:start and pos:end attributes to elements.
	Positions bool
	// Filename is used in warnings only.
	Filename string
}

// Build marks up text and appends the result to root. It returns the
// recovery warnings raised along the way.
func (g *Grammar) Build(root *markup.Node, text string, opts Options) []*errors.ParseRecoveryWarning {
	b := newBuilder(g, text, 0, len(text), opts, newLineIndex(text), root)
	switch g.family {
	case familyPython:
		(&pyBuilder{builder: b}).run()
	default:
		(&cBuilder{builder: b}).run()
	}
	return b.warnings
}
