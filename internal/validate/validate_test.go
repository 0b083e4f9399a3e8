package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/dsl"
	"github.com/caretta-labs/trackserver/internal/validate"
)

func TestExperimentSearchFilter_RejectsParamQualifier(t *testing.T) {
	comparisons, err := dsl.ParseFilter("param.key = 'v'")
	require.NoError(t, err)

	err = validate.ExperimentSearchFilter(comparisons)
	require.Error(t, err)
	assert.True(t, trackserver.IsInvalidParameter(err))
}

func TestExperimentSearchFilter_AllowsAttributeAndTag(t *testing.T) {
	comparisons, err := dsl.ParseFilter("name = 'exp1' AND tag.key = 'v'")
	require.NoError(t, err)
	require.NoError(t, validate.ExperimentSearchFilter(comparisons))
}

func TestExperimentSearchOrderBy_AppendsTieBreakerWhenAbsent(t *testing.T) {
	clauses, err := validate.ParseAndValidateOrderBy([]string{"name DESC"})
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	last := clauses[len(clauses)-1]
	assert.Equal(t, "experiment_id", last.Identifier.Key)
	assert.Equal(t, dsl.Ascending, last.Direction)
}

func TestExperimentSearchOrderBy_NoDuplicateTieBreaker(t *testing.T) {
	clauses, err := validate.ParseAndValidateOrderBy([]string{"experiment_id DESC"})
	require.NoError(t, err)
	require.Len(t, clauses, 1)
	assert.Equal(t, dsl.Descending, clauses[0].Direction)
}

func TestExperimentSearchOrderBy_RejectsNonAttributeQualifier(t *testing.T) {
	_, err := validate.ParseAndValidateOrderBy([]string{"tag.key ASC"})
	require.Error(t, err)
	assert.True(t, trackserver.IsInvalidParameter(err))
}

func TestParseAndValidateFilter_PropagatesParseError(t *testing.T) {
	_, err := validate.ParseAndValidateFilter("a = 'v' garbage")
	require.Error(t, err)
	assert.True(t, trackserver.IsInvalidParameter(err))
}
