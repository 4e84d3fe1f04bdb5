// Package pred implements the predicate IR and its three-valued null
// semantics, including a dictionary-scan regex optimization cached by
// dictionary identity.
package pred

import (
	"fmt"
	"regexp"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/expr"
)

// Kind identifies a predicate node's operator.
type Kind int

const (
	ConstBool Kind = iota
	And
	Or
	Not
	Cmp
	In
	IsNull
	NotNull
	Regex
)

// CmpOp is one of the six comparison operators.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Node is one predicate IR node.
type Node struct {
	Kind Kind

	Value bool // ConstBool

	A, B *Node // And/Or operands; Not uses A only

	Op     CmpOp     // Cmp
	LHS    *expr.Node // Cmp/In/IsNull/NotNull operand
	RHS    *expr.Node // Cmp operand (may be literal const_null)
	RHSIsLiteralNull bool // true iff RHS is literally const_null in the IR

	NumericList []float64 // In
	StringList  []string  // In
	IsStringIn  bool

	RegexKey   column.KeyID // Regex
	Pattern    string
	PatternParam string // if non-empty, pattern comes from this param
	Flags      string   // "" or "i"
}

// Tri is a three-valued logic result: true, false, or unknown.
type Tri int

const (
	False Tri = iota
	True
	Unknown
)

// Row mirrors expr.Row for predicate evaluation.
type Row struct {
	Bundle *column.Bundle
	Index  int
}

// Matcher supplies the cached dictionary match table. Callers pass
// a *Cache (see cache.go); tests may stub it.
type Matcher interface {
	Match(dict *column.Dictionary, pattern, flags string) ([]bool, error)
}

// Eval evaluates n against row, returning a three-valued result.
func Eval(n *Node, row Row, env expr.Env, m Matcher) (Tri, error) {
	switch n.Kind {
	case ConstBool:
		return boolToTri(n.Value), nil
	case And:
		return evalAnd(n, row, env, m)
	case Or:
		return evalOr(n, row, env, m)
	case Not:
		a, err := Eval(n.A, row, env, m)
		if err != nil {
			return Unknown, err
		}
		return notTri(a), nil
	case Cmp:
		return evalCmp(n, row, env)
	case In:
		return evalIn(n, row, env)
	case IsNull:
		_, ok, err := expr.Eval(n.LHS, expr.Row{Bundle: row.Bundle, Index: row.Index}, env)
		if err != nil {
			return Unknown, err
		}
		return boolToTri(!ok), nil
	case NotNull:
		_, ok, err := expr.Eval(n.LHS, expr.Row{Bundle: row.Bundle, Index: row.Index}, env)
		if err != nil {
			return Unknown, err
		}
		return boolToTri(ok), nil
	case Regex:
		return evalRegex(n, row, env, m)
	default:
		return Unknown, apperr.New(apperr.KindEvaluation, "unknown predicate kind %d", n.Kind)
	}
}

// EvalForFilter coerces Eval's three-valued result to a boolean for filter
// purposes: only True passes, False and Unknown (null rows) are excluded.
func EvalForFilter(n *Node, row Row, env expr.Env, m Matcher) (bool, error) {
	t, err := Eval(n, row, env, m)
	if err != nil {
		return false, err
	}
	return t == True, nil
}

func evalAnd(n *Node, row Row, env expr.Env, m Matcher) (Tri, error) {
	a, err := Eval(n.A, row, env, m)
	if err != nil {
		return Unknown, err
	}
	if a == False {
		return False, nil
	}
	b, err := Eval(n.B, row, env, m)
	if err != nil {
		return Unknown, err
	}
	if b == False {
		return False, nil
	}
	if a == True && b == True {
		return True, nil
	}
	return Unknown, nil
}

func evalOr(n *Node, row Row, env expr.Env, m Matcher) (Tri, error) {
	a, err := Eval(n.A, row, env, m)
	if err != nil {
		return Unknown, err
	}
	if a == True {
		return True, nil
	}
	b, err := Eval(n.B, row, env, m)
	if err != nil {
		return Unknown, err
	}
	if b == True {
		return True, nil
	}
	if a == False && b == False {
		return False, nil
	}
	return Unknown, nil
}

func notTri(t Tri) Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

func boolToTri(b bool) Tri {
	if b {
		return True
	}
	return False
}

// evalCmp implements the null-comparison rules:
//   - RHS literally const_null in the IR: == / != behave as is_null/not_null;
//     ordering operators against literal null yield false.
//   - RHS a runtime null (non-literal operand evaluates to null): every
//     comparator, including !=, yields false — deliberately stricter than
//     SQL's three-valued UNKNOWN for != against null.
func evalCmp(n *Node, row Row, env expr.Env) (Tri, error) {
	er := expr.Row{Bundle: row.Bundle, Index: row.Index}

	if n.RHSIsLiteralNull {
		lhsOK, err := lhsValid(n.LHS, er, env)
		if err != nil {
			return Unknown, err
		}
		switch n.Op {
		case Eq:
			return boolToTri(!lhsOK), nil
		case Ne:
			return boolToTri(lhsOK), nil
		default:
			return False, nil
		}
	}

	a, aok, err := expr.Eval(n.LHS, er, env)
	if err != nil {
		return Unknown, err
	}
	b, bok, err := expr.Eval(n.RHS, er, env)
	if err != nil {
		return Unknown, err
	}
	if !aok || !bok {
		return False, nil
	}

	var result bool
	switch n.Op {
	case Eq:
		result = a == b
	case Ne:
		result = a != b
	case Lt:
		result = a < b
	case Le:
		result = a <= b
	case Gt:
		result = a > b
	case Ge:
		result = a >= b
	}
	return boolToTri(result), nil
}

func lhsValid(node *expr.Node, row expr.Row, env expr.Env) (bool, error) {
	_, ok, err := expr.Eval(node, row, env)
	return ok, err
}

// evalIn: null lhs yields false.
func evalIn(n *Node, row Row, env expr.Env) (Tri, error) {
	er := expr.Row{Bundle: row.Bundle, Index: row.Index}
	if n.IsStringIn {
		sc, ok := row.Bundle.Strings[keyOfLHS(n.LHS)]
		if !ok {
			return False, nil
		}
		s, ok := sc.Get(row.Index)
		if !ok {
			return False, nil
		}
		for _, cand := range n.StringList {
			if cand == s {
				return True, nil
			}
		}
		return False, nil
	}

	v, ok, err := expr.Eval(n.LHS, er, env)
	if err != nil {
		return Unknown, err
	}
	if !ok {
		return False, nil
	}
	for _, cand := range n.NumericList {
		if cand == v {
			return True, nil
		}
	}
	return False, nil
}

// keyOfLHS extracts the KeyID from a key_ref LHS expression used for
// string `in` predicates (the IR only allows key_ref there).
func keyOfLHS(n *expr.Node) column.KeyID {
	if n.Kind == expr.KeyRef {
		return n.Key
	}
	return 0
}

// evalRegex resolves the pattern (literal or param), validates flags, and
// consults the cache for the per-row match table.
func evalRegex(n *Node, row Row, env expr.Env, m Matcher) (Tri, error) {
	sc, ok := row.Bundle.Strings[n.RegexKey]
	if !ok {
		return False, nil
	}

	pattern := n.Pattern
	if n.PatternParam != "" {
		v, ok := env[n.PatternParam]
		if !ok || v == nil {
			return Unknown, apperr.New(apperr.KindEvaluation, "regex pattern param %q is null", n.PatternParam).WithParam(n.PatternParam)
		}
		s, ok := v.(string)
		if !ok {
			return Unknown, apperr.New(apperr.KindEvaluation, "regex pattern param %q is not a string", n.PatternParam).WithParam(n.PatternParam)
		}
		pattern = s
	}

	if n.Flags != "" && n.Flags != "i" {
		return Unknown, apperr.New(apperr.KindEvaluation, "invalid regex flags %q", n.Flags)
	}

	table, err := m.Match(sc.Dict, pattern, n.Flags)
	if err != nil {
		return Unknown, apperr.New(apperr.KindEvaluation, "invalid regex pattern %q: %v", pattern, err)
	}

	if row.Index >= len(sc.Codes) {
		return False, nil
	}
	valid := sc.Valid == nil || sc.Valid[row.Index]
	if !valid {
		return False, nil
	}
	code := sc.Codes[row.Index]
	if int(code) >= len(table) {
		return False, nil
	}
	return boolToTri(table[code]), nil
}

// compileRegex compiles pattern honoring the "i" flag, used by Cache.
func compileRegex(pattern, flags string) (*regexp.Regexp, error) {
	if flags == "i" {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile regex: %w", err)
	}
	return re, nil
}
