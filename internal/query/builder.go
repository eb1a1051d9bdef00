// Package query renders typed predicates into parameterized SQLite queries.
// Identifiers (tables, columns, join conditions) come from code; every value
// reaches the database as a bound parameter.
package query

import (
	"strings"
)

// Query is a rendered template plus its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// Clause is one boolean predicate.
type Clause interface {
	render(sb *strings.Builder, args *[]any)
}

type cmpClause struct {
	col string
	op  string
	val any
}

func (c cmpClause) render(sb *strings.Builder, args *[]any) {
	sb.WriteString(c.col)
	sb.WriteString(" ")
	sb.WriteString(c.op)
	sb.WriteString(" ?")
	*args = append(*args, c.val)
}

// Comparison operators accepted by Cmp.
const (
	OpEq    = "="
	OpNotEq = "<>"
	OpLt    = "<"
	OpLte   = "<="
	OpGt    = ">"
	OpGte   = ">="
	OpIsNot = "IS NOT"
)

func Eq(col string, val any) Clause {
	return cmpClause{col: col, op: OpEq, val: val}
}

// Cmp compares col against a bound value. Unknown operators degrade to "=".
func Cmp(col, op string, val any) Clause {
	switch op {
	case OpEq, OpNotEq, OpLt, OpLte, OpGt, OpGte, OpIsNot:
	default:
		op = OpEq
	}
	return cmpClause{col: col, op: op, val: val}
}

type inClause struct {
	col  string
	vals []any
}

func (c inClause) render(sb *strings.Builder, args *[]any) {
	if len(c.vals) == 0 {
		sb.WriteString("0")
		return
	}
	sb.WriteString(c.col)
	sb.WriteString(" IN (")
	for i, v := range c.vals {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("?")
		*args = append(*args, v)
	}
	sb.WriteString(")")
}

// In matches any of vals. An empty list matches nothing.
func In(col string, vals ...any) Clause {
	return inClause{col: col, vals: vals}
}

// InStrings is In for string slices.
func InStrings(col string, vals []string) Clause {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
	}
	return inClause{col: col, vals: out}
}

type likeClause struct {
	col     string
	pattern string
}

func (c likeClause) render(sb *strings.Builder, args *[]any) {
	sb.WriteString(FoldFunc + "(" + c.col + ")")
	sb.WriteString(` LIKE ` + FoldFunc + `(?) ESCAPE '\'`)
	*args = append(*args, c.pattern)
}

// FoldFunc is the SQL function the store registers to lower-case text
// beyond ASCII. SQLite's own LIKE only folds A-Z.
const FoldFunc = "pim_fold"

// Contains is a case-insensitive substring match. LIKE wildcards in s are
// matched literally.
func Contains(col, s string) Clause {
	return likeClause{col: col, pattern: "%" + escapeLike(s) + "%"}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type nullClause struct {
	col string
	not bool
}

func (c nullClause) render(sb *strings.Builder, _ *[]any) {
	sb.WriteString(c.col)
	if c.not {
		sb.WriteString(" IS NOT NULL")
	} else {
		sb.WriteString(" IS NULL")
	}
}

func IsNull(col string) Clause    { return nullClause{col: col} }
func IsNotNull(col string) Clause { return nullClause{col: col, not: true} }

type groupClause struct {
	op      string
	clauses []Clause
}

func (c groupClause) render(sb *strings.Builder, args *[]any) {
	if len(c.clauses) == 0 {
		if c.op == "OR" {
			sb.WriteString("0")
		} else {
			sb.WriteString("1")
		}
		return
	}
	sb.WriteString("(")
	for i, cl := range c.clauses {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(c.op)
			sb.WriteString(" ")
		}
		cl.render(sb, args)
	}
	sb.WriteString(")")
}

func Or(clauses ...Clause) Clause  { return groupClause{op: "OR", clauses: clauses} }
func And(clauses ...Clause) Clause { return groupClause{op: "AND", clauses: clauses} }

// Range matches from <= col < to.
func Range(col string, from, to any) Clause {
	return And(Cmp(col, OpGte, from), Cmp(col, OpLt, to))
}

// Join is a LEFT JOIN with a fixed condition.
type Join struct {
	Table string
	On    string
}

// Order is one ORDER BY term.
type Order struct {
	Expr      string
	Desc      bool
	NullsLast bool
}

// Select assembles a SELECT statement.
type Select struct {
	Distinct bool
	Columns  string
	From     string
	Joins    []Join
	Where    []Clause
	OrderBy  []Order
}

// Render returns the SQL template and its arguments in placeholder order.
func (s *Select) Render() Query {
	var sb strings.Builder
	args := make([]any, 0, len(s.Where))

	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(s.Columns)
	sb.WriteString(" FROM ")
	sb.WriteString(s.From)

	for _, j := range s.Joins {
		sb.WriteString(" LEFT JOIN ")
		sb.WriteString(j.Table)
		sb.WriteString(" ON ")
		sb.WriteString(j.On)
	}

	for i, w := range s.Where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		w.render(&sb, &args)
	}

	for i, o := range s.OrderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		if o.NullsLast {
			sb.WriteString(o.Expr)
			sb.WriteString(" IS NULL, ")
		}
		sb.WriteString(o.Expr)
		if o.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	return Query{SQL: sb.String(), Args: args}
}
