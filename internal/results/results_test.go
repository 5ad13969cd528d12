package results

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allPass() Grid {
	var g Grid
	for i := range g {
		for j := range g[i] {
			g[i][j] = Pass
		}
	}
	return g
}

func TestGridEncodeParse(t *testing.T) {
	g := allPass()
	g[7][3] = Fail
	g[0][1] = Unset

	encoded := g.Encode()
	require.Len(t, encoded, Cells)
	assert.Equal(t, byte(' '), encoded[1])
	assert.Equal(t, byte('-'), encoded[31])

	parsed, err := ParseGrid(encoded)
	require.NoError(t, err)
	assert.Equal(t, g, parsed)

	_, err = ParseGrid(strings.Repeat("+", 31))
	assert.Error(t, err)
	_, err = ParseGrid(strings.Repeat("x", Cells))
	assert.Error(t, err)
}

func TestGridCounts(t *testing.T) {
	g := allPass()
	assert.True(t, g.Complete())
	assert.False(t, g.HasFailure())
	assert.Equal(t, Cells, g.Count(Pass))

	g[3][2] = Fail
	assert.True(t, g.HasFailure())
	assert.Equal(t, 1, g.Count(Fail))

	var empty Grid
	assert.False(t, empty.Complete())
	assert.Equal(t, Cells, empty.Count(Unset))
}

func TestRandomGridOnlyPassOrFail(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 0; n < 20; n++ {
		g := RandomGrid(r)
		assert.True(t, g.Complete())
		assert.Equal(t, Cells, g.Count(Pass)+g.Count(Fail))
	}
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "СКУ ЛИАБ сработало по короткому замыканию", VerdictTripped.String())
	assert.Equal(t, "СКУ ЛИАБ не сработало по короткому замыканию", VerdictNotTripped.String())
	assert.Equal(t, "Порог по КЗ не достигнут", VerdictThresholdNotReached.String())

	assert.True(t, VerdictTripped.Succeeded())
	assert.False(t, VerdictNotTripped.Succeeded())
	assert.False(t, VerdictThresholdNotReached.Succeeded())
	assert.False(t, Verdict(7).Valid())

	for _, v := range Verdicts {
		parsed, err := ParseVerdict(" " + v.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
	_, err := ParseVerdict("сработало по короткому замыканию")
	assert.Error(t, err)

	seen := map[Verdict]bool{}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		seen[RandomVerdict(r)] = true
	}
	assert.Len(t, seen, 3)
}

func TestNegativeDetermination(t *testing.T) {
	g := allPass()
	assert.False(t, Negative(g, VerdictTripped))
	assert.True(t, Negative(g, VerdictNotTripped))
	assert.True(t, Negative(g, VerdictThresholdNotReached))

	g[5][0] = Fail
	assert.True(t, Negative(g, VerdictTripped))
}
