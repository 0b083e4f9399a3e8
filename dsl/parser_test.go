package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter_Empty(t *testing.T) {
	comparisons, err := ParseFilter("")
	require.NoError(t, err)
	assert.Empty(t, comparisons)
}

func TestParseFilter_BareNameDefaultsToAttribute(t *testing.T) {
	names := []string{"n", "run_name", "a1b2", "_leading"}
	for _, n := range names {
		comparisons, err := ParseFilter(n + " = 'v'")
		require.NoError(t, err)
		require.Len(t, comparisons, 1)
		assert.Equal(t, QualifierAttribute, comparisons[0].Identifier.Qualifier)
		assert.Equal(t, n, comparisons[0].Identifier.Key)
		assert.Equal(t, Eq, comparisons[0].Comparator)
		assert.Equal(t, StringLiteral("v"), comparisons[0].Literal)
	}
}

func TestParseFilter_QualifierPrefixes(t *testing.T) {
	cases := []struct {
		prefix string
		want   Qualifier
	}{
		{"attribute.", QualifierAttribute},
		{"tag.", QualifierTag},
		{"param.", QualifierParam},
		{"metric.", QualifierMetric},
	}
	for _, c := range cases {
		comparisons, err := ParseFilter(c.prefix + "k = 'v'")
		require.NoError(t, err)
		require.Len(t, comparisons, 1)
		assert.Equal(t, c.want, comparisons[0].Identifier.Qualifier)
		assert.Equal(t, "k", comparisons[0].Identifier.Key)
	}
}

func TestParseFilter_TwoComparisonsWithAnd(t *testing.T) {
	comparisons, err := ParseFilter("a = 'v' AND b > 0.5")
	require.NoError(t, err)
	require.Len(t, comparisons, 2)
	assert.Equal(t, Gt, comparisons[1].Comparator)
	assert.Equal(t, FloatLiteral(0.5), comparisons[1].Literal)
}

func TestParseFilter_AndIsCaseInsensitive(t *testing.T) {
	for _, kw := range []string{"AND", "and", "And", "aNd"} {
		comparisons, err := ParseFilter("a = 'v' " + kw + " b = 'w'")
		require.NoError(t, err)
		assert.Len(t, comparisons, 2)
	}
}

func TestParseFilter_TrailingInputFails(t *testing.T) {
	_, err := ParseFilter("a = 'v' garbage")
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseFilter_NoWhitespaceRequired(t *testing.T) {
	comparisons, err := ParseFilter("a='b'")
	require.NoError(t, err)
	require.Len(t, comparisons, 1)
	assert.Equal(t, "b", comparisons[0].Literal.Str)
}

func TestParseFilter_FloatBeforeInteger(t *testing.T) {
	comparisons, err := ParseFilter("metric.loss < 1.0")
	require.NoError(t, err)
	require.Len(t, comparisons, 1)
	assert.Equal(t, LiteralFloat, comparisons[0].Literal.Kind)
	assert.Equal(t, 1.0, comparisons[0].Literal.Float)
}

func TestParseFilter_NegativeIntegerAndFloat(t *testing.T) {
	comparisons, err := ParseFilter("a = -3 AND b = -1.5")
	require.NoError(t, err)
	require.Len(t, comparisons, 2)
	assert.Equal(t, int64(-3), comparisons[0].Literal.Int)
	assert.Equal(t, -1.5, comparisons[1].Literal.Float)
}

func TestParseFilter_DquoteIdentifierEscaping(t *testing.T) {
	comparisons, err := ParseFilter(`"weird \"name\"" = 'v'`)
	require.NoError(t, err)
	require.Len(t, comparisons, 1)
	assert.Equal(t, `weird "name"`, comparisons[0].Identifier.Key)
}

func TestParseFilter_BacktickIdentifierNoUnescaping(t *testing.T) {
	comparisons, err := ParseFilter("`has spaces and \\n` = 'v'")
	require.NoError(t, err)
	require.Len(t, comparisons, 1)
	assert.Equal(t, `has spaces and \n`, comparisons[0].Identifier.Key)
}

func TestParseFilter_EmptyBacktickNameFails(t *testing.T) {
	_, err := ParseFilter("`` = 'v'")
	require.Error(t, err)
}

func TestParseFilter_Comparators(t *testing.T) {
	cases := []struct {
		input string
		want  Comparator
	}{
		{"a != 1", Ne},
		{"a <= 1", Le},
		{"a >= 1", Ge},
		{"a < 1", Lt},
		{"a > 1", Gt},
		{"a = 1", Eq},
		{"a LIKE 'v'", Like},
		{"a ilike 'v'", ILike},
	}
	for _, c := range cases {
		comparisons, err := ParseFilter(c.input)
		require.NoError(t, err, c.input)
		require.Len(t, comparisons, 1, c.input)
		assert.Equal(t, c.want, comparisons[0].Comparator, c.input)
	}
}

func TestParseOrderBy_DefaultsToAscending(t *testing.T) {
	clause, err := ParseOrderBy("name")
	require.NoError(t, err)
	assert.Equal(t, Ascending, clause.Direction)
	assert.Equal(t, "name", clause.Identifier.Key)
}

func TestParseOrderBy_ExplicitDirection(t *testing.T) {
	clause, err := ParseOrderBy("name DESC")
	require.NoError(t, err)
	assert.Equal(t, Descending, clause.Direction)

	clause, err = ParseOrderBy("name asc")
	require.NoError(t, err)
	assert.Equal(t, Ascending, clause.Direction)
}

func TestParseOrderBy_QualifiedIdentifier(t *testing.T) {
	clause, err := ParseOrderBy("attribute.name DESC")
	require.NoError(t, err)
	assert.Equal(t, QualifierAttribute, clause.Identifier.Qualifier)
}

func TestParseOrderBy_TrailingInputFails(t *testing.T) {
	_, err := ParseOrderBy("name DESC garbage")
	require.Error(t, err)
}
