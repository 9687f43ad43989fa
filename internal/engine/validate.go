package engine

import (
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError marks a query rejected before or during execution for
// reasons attributable to the SQL text itself.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string { return e.Message }

func syntaxErrf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

// deniedKeywords are statement kinds and escape hatches that a
// read-only analytical query never needs. Matched as whole word tokens
// outside string literals.
var deniedKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "create": {},
	"alter": {}, "truncate": {}, "replace": {}, "merge": {}, "grant": {},
	"revoke": {}, "attach": {}, "detach": {}, "copy": {}, "export": {},
	"import": {}, "install": {}, "load": {}, "call": {}, "pragma": {},
	"set": {}, "reset": {}, "vacuum": {}, "checkpoint": {},
	// Table functions that would read arbitrary paths.
	"read_parquet": {}, "read_csv": {}, "read_csv_auto": {}, "read_json": {},
	"read_json_auto": {}, "glob": {}, "getenv": {},
}

// ValidateSQL enforces the read-only query contract: exactly one
// statement, starting with SELECT or WITH, touching only the virtual
// table named data, with no write or filesystem keywords anywhere.
func ValidateSQL(query string) error {
	stripped := stripComments(query)

	tokens := tokenize(stripped)
	if len(tokens) == 0 {
		return syntaxErrf("query is empty")
	}

	statements := 0
	seenToken := false
	for _, tok := range tokens {
		if tok == ";" {
			seenToken = false
			continue
		}
		if !seenToken {
			statements++
			seenToken = true
		}
	}
	if statements > 1 {
		return syntaxErrf("only a single statement is allowed")
	}

	first := strings.ToLower(tokens[0])
	if first != "select" && first != "with" {
		return syntaxErrf("only SELECT queries are allowed, got %q", strings.ToUpper(tokens[0]))
	}

	// CTE names may be referenced in FROM, so collect them first.
	cteNames := collectCTENames(tokens)

	// Functions whose argument list legally contains a FROM keyword.
	fromFuncs := map[string]struct{}{
		"extract": {}, "substring": {}, "trim": {}, "position": {},
	}

	var funcStack []string
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		switch tok {
		case "(":
			caller := ""
			if i > 0 && isIdentToken(tokens[i-1]) {
				caller = strings.ToLower(tokens[i-1])
			}
			funcStack = append(funcStack, caller)
			continue
		case ")":
			if len(funcStack) > 0 {
				funcStack = funcStack[:len(funcStack)-1]
			}
			continue
		}

		if _, denied := deniedKeywords[lower]; denied {
			return syntaxErrf("keyword %s is not allowed", strings.ToUpper(lower))
		}
		if lower != "from" && lower != "join" {
			continue
		}
		// FROM inside extract(month FROM d) and friends binds a column,
		// not a table.
		if len(funcStack) > 0 {
			if _, ok := fromFuncs[funcStack[len(funcStack)-1]]; ok {
				continue
			}
		}
		if i+1 >= len(tokens) {
			continue
		}
		ref := tokens[i+1]
		if ref == "(" || ref == ";" {
			continue
		}
		refLower := strings.ToLower(strings.Trim(ref, `"`))
		if refLower == "data" {
			continue
		}
		if _, ok := cteNames[refLower]; ok {
			continue
		}
		return syntaxErrf("unknown table %q, only the table data can be queried", ref)
	}
	return nil
}

// collectCTENames gathers identifiers bound by WITH ... AS so later
// FROM clauses can reference them.
func collectCTENames(tokens []string) map[string]struct{} {
	names := make(map[string]struct{})
	for i, tok := range tokens {
		if !strings.EqualFold(tok, "as") || i == 0 || i+1 >= len(tokens) {
			continue
		}
		if tokens[i+1] == "(" && isIdentToken(tokens[i-1]) {
			names[strings.ToLower(strings.Trim(tokens[i-1], `"`))] = struct{}{}
		}
	}
	return names
}

func isIdentToken(tok string) bool {
	if tok == "" {
		return false
	}
	r := rune(tok[0])
	return unicode.IsLetter(r) || r == '_' || r == '"'
}

// stripComments removes -- line comments and /* */ block comments,
// leaving string literals intact.
func stripComments(s string) string {
	var b strings.Builder
	inString := false
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\'' {
				inString = false
			}
			i++
		case c == '\'':
			inString = true
			b.WriteByte(c)
			i++
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i += 2
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// tokenize splits SQL into word tokens, punctuation, and skips string
// literal contents entirely.
func tokenize(s string) []string {
	var tokens []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'':
			i++
			for i < len(s) && s[i] != '\'' {
				i++
			}
			i++
			tokens = append(tokens, "'str'")
		case c == '"':
			start := i
			i++
			for i < len(s) && s[i] != '"' {
				i++
			}
			i++
			tokens = append(tokens, s[start:i])
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			tokens = append(tokens, s[start:i])
		case c == '(' || c == ')' || c == ';':
			tokens = append(tokens, string(c))
			i++
		default:
			i++
		}
	}
	return tokens
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= 0x80
}
