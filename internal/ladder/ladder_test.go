package ladder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmelnikov/quizrush/internal/ladder"
)

func TestLadder_ValueAt(t *testing.T) {
	l := ladder.Default

	require.Equal(t, 15, l.Len())

	assert.EqualValues(t, 5, l.ValueAt(0))
	assert.EqualValues(t, 100, l.ValueAt(4))
	assert.EqualValues(t, 200, l.ValueAt(5))
	assert.EqualValues(t, 10000, l.ValueAt(14))

	assert.EqualValues(t, 0, l.ValueAt(-1))
	assert.EqualValues(t, 0, l.ValueAt(15))
}

func TestLadder_StrictlyIncreasing(t *testing.T) {
	l := ladder.Default

	for i := 1; i < l.Len(); i++ {
		assert.Greater(t, l.ValueAt(i), l.ValueAt(i-1), "position %d", i)
	}
}
