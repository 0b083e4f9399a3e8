// Package validate enforces the per-endpoint semantic constraints that sit
// between a syntactically valid parse tree and the query builder: which
// qualifiers an endpoint accepts, and the implicit tie-breaker every
// order-by list must carry for deterministic pagination.
package validate

import (
	"fmt"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/dsl"
)

// tieBreakerKey is the identifier key the validator appends to every
// order-by list that doesn't already mention it.
const tieBreakerKey = "experiment_id"

// ExperimentSearchFilter rejects any comparison whose qualifier is not
// attribute or tag. param/metric qualifiers don't exist on the experiment
// schema, so a comparison naming one can never match anything; rejecting
// it early gives a precise 400 instead of a query builder that silently
// produces zero rows.
func ExperimentSearchFilter(comparisons []dsl.Comparison) error {
	for _, c := range comparisons {
		if c.Identifier.Qualifier != dsl.QualifierAttribute && c.Identifier.Qualifier != dsl.QualifierTag {
			return trackserver.NewInvalidParameter(
				trackserver.CodeInvalidQualifier,
				fmt.Sprintf("experiment search filter does not support qualifier %q on %q; only attribute and tag are allowed", c.Identifier.Qualifier, c.Identifier.Key),
			)
		}
	}
	return nil
}

// ExperimentSearchOrderBy rejects any clause whose qualifier is not
// attribute, then appends the experiment_id ASC tie-breaker if no clause
// already names experiment_id (§4.2).
func ExperimentSearchOrderBy(clauses []dsl.OrderByClause) ([]dsl.OrderByClause, error) {
	hasTieBreaker := false
	for _, c := range clauses {
		if c.Identifier.Qualifier != dsl.QualifierAttribute {
			return nil, trackserver.NewInvalidParameter(
				trackserver.CodeInvalidQualifier,
				fmt.Sprintf("experiment search order-by does not support qualifier %q on %q; only attribute is allowed", c.Identifier.Qualifier, c.Identifier.Key),
			)
		}
		if c.Identifier.Key == tieBreakerKey {
			hasTieBreaker = true
		}
	}

	if hasTieBreaker {
		return clauses, nil
	}
	return append(clauses, dsl.OrderByClause{
		Identifier: dsl.Identifier{Qualifier: dsl.QualifierAttribute, Key: tieBreakerKey},
		Direction:  dsl.Ascending,
	}), nil
}

// ParseAndValidateFilter parses filterString and runs it through
// ExperimentSearchFilter, collapsing the two-step "parse then validate"
// flow every endpoint needs into one call. An empty filterString parses to
// zero comparisons and always passes.
func ParseAndValidateFilter(filterString string) ([]dsl.Comparison, error) {
	comparisons, err := dsl.ParseFilter(filterString)
	if err != nil {
		return nil, wrapParseError(err)
	}
	if err := ExperimentSearchFilter(comparisons); err != nil {
		return nil, err
	}
	return comparisons, nil
}

// ParseAndValidateOrderBy parses every entry of orderBy independently,
// validates each against ExperimentSearchOrderBy's qualifier rule, and
// appends the tie-breaker exactly once.
func ParseAndValidateOrderBy(orderBy []string) ([]dsl.OrderByClause, error) {
	clauses := make([]dsl.OrderByClause, 0, len(orderBy))
	for _, entry := range orderBy {
		clause, err := dsl.ParseOrderBy(entry)
		if err != nil {
			return nil, wrapParseError(err)
		}
		clauses = append(clauses, clause)
	}
	return ExperimentSearchOrderBy(clauses)
}

func wrapParseError(err error) error {
	if pe, ok := err.(*dsl.ParseError); ok {
		return trackserver.NewInvalidParameter(trackserver.CodeParseFailure, pe.Error())
	}
	return trackserver.NewInvalidParameter(trackserver.CodeParseFailure, err.Error())
}
