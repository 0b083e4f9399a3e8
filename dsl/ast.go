// Package dsl implements the filter/order-by expression language that
// client requests pass in as opaque strings: string and numeric literals,
// qualified identifiers, comparison operators, logical AND, and direction
// keywords. Parsing is pure and allocation-light; it performs no I/O.
package dsl

import "fmt"

// Qualifier selects which side table a predicate addresses.
type Qualifier string

const (
	QualifierAttribute Qualifier = "attribute"
	QualifierTag       Qualifier = "tag"
	QualifierParam     Qualifier = "param"
	QualifierMetric    Qualifier = "metric"
)

// Comparator is a comparison operator. LIKE/ILIKE always render uppercase
// regardless of the case used in the input string.
type Comparator string

const (
	Eq    Comparator = "="
	Ne    Comparator = "!="
	Lt    Comparator = "<"
	Le    Comparator = "<="
	Gt    Comparator = ">"
	Ge    Comparator = ">="
	Like  Comparator = "LIKE"
	ILike Comparator = "ILIKE"
)

// LiteralKind distinguishes the three literal shapes the grammar allows.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInteger
	LiteralFloat
)

// Literal is a tagged union over string/integer/float; exactly one of Str,
// Int, Float is meaningful, selected by Kind.
type Literal struct {
	Kind  LiteralKind
	Str   string
	Int   int64
	Float float64
}

func StringLiteral(s string) Literal  { return Literal{Kind: LiteralString, Str: s} }
func IntegerLiteral(i int64) Literal  { return Literal{Kind: LiteralInteger, Int: i} }
func FloatLiteral(f float64) Literal  { return Literal{Kind: LiteralFloat, Float: f} }

func (l Literal) String() string {
	switch l.Kind {
	case LiteralString:
		return fmt.Sprintf("'%s'", l.Str)
	case LiteralInteger:
		return fmt.Sprintf("%d", l.Int)
	case LiteralFloat:
		return fmt.Sprintf("%v", l.Float)
	default:
		return ""
	}
}

// Identifier is a qualified name: an optional "attribute."/"tag."/"param."/
// "metric." prefix (defaulting to attribute) plus a key, which may come from
// a bare name, a double-quoted name, or a backtick-quoted name.
type Identifier struct {
	Qualifier Qualifier
	Key       string
}

// Comparison is one leaf of a parsed filter string: `identifier comparator literal`.
type Comparison struct {
	Identifier Identifier
	Comparator Comparator
	Literal    Literal
}

// Direction is an ORDER BY direction; it defaults to Ascending when omitted.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// OrderByClause is one parsed order-by entry: `identifier [ASC|DESC]`.
type OrderByClause struct {
	Identifier Identifier
	Direction  Direction
}

// ParseError is a structured parse failure carrying the byte offset at
// which parsing stopped making progress, and a hint about what the parser
// expected there.
type ParseError struct {
	Offset   int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at byte offset %d: expected %s", e.Offset, e.Expected)
}
