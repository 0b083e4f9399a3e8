// Package querybuilder lowers a validated filter/order-by tree into a
// parameterised SQL statement for experiment search. It is the central
// algorithm of the tracking server: tag predicates live in a side table, so
// an AND-of-tag-predicates filter has to be expressed as a grouped
// sub-query rather than a chain of joins (§4.3).
package querybuilder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caretta-labs/trackserver/dsl"
)

// Dialect distinguishes the two backends' placeholder syntax. Both backends
// otherwise share every byte of generated SQL; see internal/store for where
// that syntax union was last this narrow in the teacher's own dual-path
// generator.
type Dialect int

const (
	// Postgres uses numbered placeholders ($1, $2, ...).
	Postgres Dialect = iota
	// DuckDB uses positional '?' placeholders.
	DuckDB
)

// paramBinder accumulates bound arguments and renders the placeholder for
// the next one, threading a running index the way condition.go's
// ToSqlClauses threads *paramIndex across a recursive descent.
type paramBinder struct {
	dialect Dialect
	args    []any
}

func (b *paramBinder) bind(v any) string {
	b.args = append(b.args, v)
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

// Query is a built statement and its bound arguments, ready to hand to the
// store's query executor for either backend.
type Query struct {
	SQL  string
	Args []any
}

// BuildSearchExperiments lowers comparisons and orderBy (already parsed and
// semantically validated) plus maxResults into the §4.3 query skeleton.
func BuildSearchExperiments(comparisons []dsl.Comparison, orderBy []dsl.OrderByClause, maxResults int64, dialect Dialect) (Query, error) {
	binder := &paramBinder{dialect: dialect}

	attrs, tags := partition(comparisons)

	attrClause, err := buildAttributeClause(attrs)
	if err != nil {
		return Query{}, err
	}

	var b strings.Builder
	b.WriteString("SELECT experiments.* FROM experiments")

	if len(tags) > 0 {
		tagSubquery, err := buildTagSubquery(tags)
		if err != nil {
			return Query{}, err
		}
		b.WriteString(" INNER JOIN (")
		b.WriteString(tagSubquery)
		b.WriteString(") ft ON ft.experiment_id = experiments.experiment_id")
	}

	b.WriteString(" WHERE ")
	b.WriteString(attrClause)

	orderByRendered, err := renderOrderBy(orderBy)
	if err != nil {
		return Query{}, err
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderByRendered)

	b.WriteString(" LIMIT ")
	b.WriteString(binder.bind(maxResults))

	return Query{SQL: b.String(), Args: binder.args}, nil
}

// partition splits comparisons into attribute and tag predicates; param and
// metric predicates never reach here because the validator already rejected
// them for this endpoint (§4.2).
func partition(comparisons []dsl.Comparison) (attrs, tags []dsl.Comparison) {
	for _, c := range comparisons {
		if c.Identifier.Qualifier == dsl.QualifierTag {
			tags = append(tags, c)
		} else {
			attrs = append(attrs, c)
		}
	}
	return attrs, tags
}

// buildAttributeClause renders "1 = 1" for no predicates, or the predicates
// ANDed together directly — attribute columns live on the experiments table
// itself, so no join is needed (property 6: no experiment_tags reference
// when there are no tag predicates).
func buildAttributeClause(attrs []dsl.Comparison) (string, error) {
	if len(attrs) == 0 {
		return "1 = 1", nil
	}
	clauses := make([]string, 0, len(attrs))
	for _, c := range attrs {
		if !isSafeColumnName(c.Identifier.Key) {
			return "", fmt.Errorf("querybuilder: identifier key %q is not a valid column reference", c.Identifier.Key)
		}
		clauses = append(clauses, renderPredicate(c.Identifier.Key, c.Comparator, c.Literal))
	}
	return strings.Join(clauses, " AND "), nil
}

// isSafeColumnName reports whether key is safe to splice directly into SQL
// text as a bare column reference. Attribute and order-by keys are spliced
// this way (they cannot be placeholder-bound as column names), so every key
// that reaches renderPredicate/renderOrderBy as a column must be rejected
// unless it matches the grammar's bare_name production (§4.3 safety note a):
// dquote_name and backtick_name identifiers can carry arbitrary bytes,
// including SQL metacharacters, and must never be used as raw column names.
func isSafeColumnName(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		isAlpha := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if !(isAlpha || isDigit || c == '_') {
			return false
		}
	}
	return true
}

// buildTagSubquery renders the HAVING-count-over-disjuncts sub-query from
// §4.3: group predicates by key, OR the per-key groups together, and
// require every distinct key to have matched at least once.
func buildTagSubquery(tags []dsl.Comparison) (string, error) {
	grouped := make(map[string][]dsl.Comparison)
	var keyOrder []string
	for _, c := range tags {
		if _, seen := grouped[c.Identifier.Key]; !seen {
			keyOrder = append(keyOrder, c.Identifier.Key)
		}
		grouped[c.Identifier.Key] = append(grouped[c.Identifier.Key], c)
	}

	disjuncts := make([]string, 0, len(keyOrder))
	for _, key := range keyOrder {
		perKey := grouped[key]
		predicates := make([]string, 0, len(perKey))
		for _, c := range perKey {
			predicates = append(predicates, renderPredicate("value", c.Comparator, c.Literal))
		}
		disjuncts = append(disjuncts, fmt.Sprintf("(key=%s AND %s)", quoteString(key), strings.Join(predicates, " AND ")))
	}

	return fmt.Sprintf(
		"SELECT experiment_id FROM experiment_tags WHERE %s GROUP BY experiment_id HAVING COUNT(*) >= %d",
		strings.Join(disjuncts, " OR "),
		len(keyOrder),
	), nil
}

// renderPredicate renders "column comparator literal". Identifier keys are
// never attacker-controlled SQL beyond what the parser's name production
// already allowed through (§4.3 safety note a); only literal values are
// splice-escaped here, via single-quote doubling for strings and
// re-serialisation (not echoing) for numerics.
func renderPredicate(column string, comparator dsl.Comparator, literal dsl.Literal) string {
	return fmt.Sprintf("%s %s %s", column, comparator, renderLiteral(literal))
}

// renderLiteral re-serialises a literal from its parsed value rather than
// echoing the original source text, and doubles single quotes inside string
// literals (§4.3 safety note b, §9 open question c).
func renderLiteral(l dsl.Literal) string {
	switch l.Kind {
	case dsl.LiteralString:
		return quoteString(l.Str)
	case dsl.LiteralInteger:
		return strconv.FormatInt(l.Int, 10)
	case dsl.LiteralFloat:
		return strconv.FormatFloat(l.Float, 'f', -1, 64)
	default:
		return ""
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// renderOrderBy renders a comma-separated "key ASC|DESC" list. The
// experiment_id tie-breaker is already appended by the validator
// (property 8), so this function only renders what it's given.
func renderOrderBy(clauses []dsl.OrderByClause) (string, error) {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if !isSafeColumnName(c.Identifier.Key) {
			return "", fmt.Errorf("querybuilder: identifier key %q is not a valid column reference", c.Identifier.Key)
		}
		parts = append(parts, fmt.Sprintf("%s %s", c.Identifier.Key, c.Direction))
	}
	return strings.Join(parts, ", "), nil
}
