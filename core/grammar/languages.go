package grammar

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Language tags of the built-in grammars.
const (
	C      = "C"
	CPP    = "C++"
	CSharp = "C#"
	Java   = "Java"
	Python = "Python"
)

// Shared pattern fragments. Strings and character literals that hit the end
// of a line unterminated still lex, so a stray quote never stops markup.
const (
	patBlockComment = `/\*(?:[^*]|\*+[^*/])*\*+/`
	patLineComment  = `//[^\r\n]*`
	patDQString     = `"(?:\\(?:\r\n|[\s\S])|[^"\\\r\n])*"?`
	patSQString     = `'(?:\\(?:\r\n|[\s\S])|[^'\\\r\n])*'?`
	patNumber       = `0[xXbB][0-9a-fA-F_']+[uUlLnN]*|(?:[0-9][0-9_']*\.?[0-9_']*|\.[0-9][0-9_']*)(?:[eEpP][+-]?[0-9]+)?[a-zA-Z_]*`
	patIdent        = `[\p{L}_$][\p{L}\p{N}_$]*`
	patWhitespace   = `[ \t\f\v]+`
	patNewline      = `\r\n|\r|\n`
	patContinuation = `\\(?:\r\n|\r|\n)`
)

const patCFamilyPunct = `>>>=|<<=|>>=|>>>|\.\.\.|->\*|->|\+\+|--|<<|>>|<=|>=|==|!=|&&|\|\||::|\+=|-=|\*=|/=|%=|&=|\|=|\^=|=>|\?\?=?|\?\.|\.\*|[-+*/%=<>!&|^~?:;,.(){}\[\]#@\\]`

const patPythonPunct = `\*\*=?|//=?|>>=?|<<=?|->|:=|\.\.\.|[-+*/%@&|^<>=!]=?|[~()\[\]{},:;.\\]`

func cFamilyRules(extraStrings string) []lexer.SimpleRule {
	str := patDQString
	if extraStrings != "" {
		str = extraStrings + "|" + str
	}
	return []lexer.SimpleRule{
		{Name: ruleComment, Pattern: patBlockComment + "|" + patLineComment},
		{Name: ruleString, Pattern: str},
		{Name: ruleChar, Pattern: patSQString},
		{Name: ruleNumber, Pattern: patNumber},
		{Name: ruleIdent, Pattern: patIdent},
		{Name: ruleWhitespace, Pattern: patWhitespace},
		{Name: ruleNewline, Pattern: patNewline},
		{Name: ruleContinuation, Pattern: patContinuation},
		{Name: rulePunct, Pattern: patCFamilyPunct},
	}
}

// C++11 raw strings with an empty delimiter, and C# verbatim and
// interpolated strings.
const (
	patCppRawString   = `(?:u8|[uUL])?R"\((?:[^)]|\)+[^)"])*\)+"`
	patCSharpVerbatim = `\$?@\$?"(?:[^"]|"")*"?|\$"(?:\\(?:\r\n|[\s\S])|[^"\\\r\n])*"?`
)

var pythonRules = []lexer.SimpleRule{
	{Name: ruleComment, Pattern: `#[^\r\n]*`},
	{Name: ruleString, Pattern: `(?i:[rbuf]{0,2})(?:"""(?:\\[\s\S]|[^\\])*?"""|'''(?:\\[\s\S]|[^\\])*?'''|` + patDQString + `|` + patSQString + `)`},
	{Name: ruleNumber, Pattern: `0[xXoObB][0-9a-fA-F_]+|(?:[0-9][0-9_]*\.?[0-9_]*|\.[0-9][0-9_]*)(?:[eE][+-]?[0-9]+)?[jJ]?`},
	{Name: ruleIdent, Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: ruleWhitespace, Pattern: patWhitespace},
	{Name: ruleNewline, Pattern: patNewline},
	{Name: ruleContinuation, Pattern: patContinuation},
	{Name: rulePunct, Pattern: patPythonPunct},
}

func words(s string) map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		m[w] = true
	}
	return m
}

const cKeywords = `auto break case char const continue default do double else enum extern
	float for goto if inline int long register restrict return short signed sizeof static
	struct switch typedef union unsigned void volatile while _Bool _Complex _Alignas _Alignof
	_Atomic _Generic _Noreturn _Static_assert _Thread_local`

const cppKeywords = cKeywords + ` alignas alignof and and_eq asm bitand bitor bool catch
	char8_t char16_t char32_t class compl concept consteval constexpr constinit const_cast
	co_await co_return co_yield decltype delete dynamic_cast explicit export false friend
	mutable namespace new noexcept not not_eq nullptr operator or or_eq private protected
	public reinterpret_cast requires static_assert static_cast template this thread_local
	throw true try typeid typename using virtual wchar_t xor xor_eq override final`

const csharpKeywords = `abstract as base bool break byte case catch char checked class const
	continue decimal default delegate do double else enum event explicit extern false finally
	fixed float for foreach goto if implicit in int interface internal is lock long namespace
	new null object operator out override params private protected public readonly ref return
	sbyte sealed short sizeof stackalloc static string struct switch this throw true try typeof
	uint ulong unchecked unsafe ushort using virtual void volatile while var async await yield
	get set add remove partial where record init dynamic nameof when`

const javaKeywords = `abstract assert boolean break byte case catch char class const continue
	default do double else enum extends final finally float for goto if implements import
	instanceof int interface long native new package private protected public return short
	static strictfp super switch synchronized this throw throws transient try void volatile
	while true false null var record sealed permits yield`

const pythonKeywords = `False None True and as assert async await break class continue def
	del elif else except finally for from global if import in is lambda nonlocal not or pass
	raise return try while with yield`

func builtinGrammars() []*Grammar {
	return []*Grammar{
		mustGrammar(C, familyC, true, []string{"c", "h"}, cFamilyRules(""), cKeywords),
		mustGrammar(CPP, familyC, true,
			[]string{"cpp", "cc", "cxx", "c++", "C", "hpp", "hh", "hxx", "h++", "tcc", "ipp"},
			cFamilyRules(patCppRawString), cppKeywords),
		mustGrammar(CSharp, familyC, true, []string{"cs"}, cFamilyRules(patCSharpVerbatim), csharpKeywords),
		mustGrammar(Java, familyC, false, []string{"java", "aj"}, cFamilyRules(""), javaKeywords),
		mustGrammar(Python, familyPython, false, []string{"py", "pyw", "pyi"}, pythonRules, pythonKeywords),
	}
}
