package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGame() *Game {
	return NewGame(
		1000,
		[]Agent{
			{Move: []AgentMove{{X: 0, Y: 0, T: 0}}},
			{Move: []AgentMove{{X: 3, Y: 4, T: 0}, {X: 10.5, Y: 20.25, T: 900}}},
		},
		[]Resource{
			{ID: 1, X: 5, Y: 6, T0: 0, T1: 2000, Type: "A", Weight: 3},
			{ID: 2, X: 7, Y: 8, T0: 1500, T1: 4000, Type: "B", Weight: 1},
		},
		3,
		[]OwnedResource{{Type: "A", Amount: 3.0}, {Type: "B", Amount: 5.0}, {Type: "C", Amount: 1.0}},
	)
}

func TestFindResourceAt(t *testing.T) {
	g := testGame()

	r, err := g.FindResourceAt(7, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, r.ID)
	assert.Equal(t, "B", r.Type)
}

func TestFindResourceAt_NotFound(t *testing.T) {
	g := testGame()

	_, err := g.FindResourceAt(1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "(1,1)")
}

func TestFindResourceAt_AfterJSONDecode(t *testing.T) {
	var g Game
	require.NoError(t, json.Unmarshal([]byte(`{"now":5,"resource":[{"id":9,"x":2,"y":3,"t0":0,"t1":10,"type":"C","weight":4}]}`), &g))

	r, err := g.FindResourceAt(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 9, r.ID)
}

func TestAgentPosition(t *testing.T) {
	g := testGame()

	x, y, err := g.AgentPosition(1)
	require.NoError(t, err)
	assert.Equal(t, 10.5, x)
	assert.Equal(t, 20.25, y)
}

func TestAgentPosition_OutOfRange(t *testing.T) {
	g := testGame()

	for _, i := range []int{-1, 2, 100} {
		_, _, err := g.AgentPosition(i)
		assert.ErrorIs(t, err, ErrOutOfRange, "index %d", i)
	}
}

func TestAgentPosition_EmptyWaypoints(t *testing.T) {
	g := NewGame(0, []Agent{{}}, nil, 0, nil)

	_, _, err := g.AgentPosition(0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestScore(t *testing.T) {
	g := testGame()

	score, err := g.Score()
	require.NoError(t, err)
	assert.InDelta(t, 1.35, score, 1e-9)
}

func TestScore_UsesThreeLowest(t *testing.T) {
	score, err := CalcScore([]OwnedResource{
		{Type: "A", Amount: 100},
		{Type: "B", Amount: 2},
		{Type: "C", Amount: 10},
		{Type: "D", Amount: 20},
	})
	require.NoError(t, err)
	assert.InDelta(t, 2+1.0+0.2, score, 1e-9)
}

func TestScore_TooFewTypes(t *testing.T) {
	_, err := CalcScore([]OwnedResource{{Type: "A", Amount: 1}})
	assert.ErrorIs(t, err, ErrTooFewOwnedTypes)
}

func TestResourceActiveAt(t *testing.T) {
	r := Resource{T0: 100, T1: 200}

	assert.False(t, r.ActiveAt(99))
	assert.True(t, r.ActiveAt(100))
	assert.True(t, r.ActiveAt(199))
	assert.False(t, r.ActiveAt(200))
}

func TestResourceWithAmount_JSON(t *testing.T) {
	var r ResourceWithAmount
	require.NoError(t, json.Unmarshal([]byte(`{"id":4,"x":1,"y":2,"t0":0,"t1":5,"type":"A","weight":2,"amount":1.5}`), &r))

	assert.Equal(t, 4, r.ID)
	assert.Equal(t, Point{X: 1, Y: 2}, r.Point())
	assert.Equal(t, 1.5, r.Amount)
}
