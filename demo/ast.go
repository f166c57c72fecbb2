package demo

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is the tiny AST produced by the Parse query. The language is
// deliberately minimal: a literal number, or a reference to another
// source file's own parsed expression (written "ref:<path>" in
// source text), used to chain queries across files the way the
// teacher's grammar imports chain ParsedGrammarQuery across files.
type Expr struct {
	Literal float64
	Ref     FilePath
	IsRef   bool
}

// Diagnostic is accumulated while parsing, the demo stand-in for the
// teacher's parse-error collection on GrammarNode.
type Diagnostic struct {
	File    FilePath
	Message string
}

// parseExpr parses one line of source text. Trailing/leading
// whitespace is ignored: reformatting a file without changing its
// value still produces an equal Expr, so the Parse query backdates
// instead of forcing its dependents (such as Value in eval.go) to
// re-execute.
func parseExpr(file FilePath, text string) (Expr, []Diagnostic) {
	trimmed := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(trimmed, "ref:"); ok {
		return Expr{Ref: FilePath(strings.TrimSpace(rest)), IsRef: true}, nil
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Expr{}, []Diagnostic{{File: file, Message: fmt.Sprintf("not a number or ref: %q", trimmed)}}
	}
	return Expr{Literal: n}, nil
}
