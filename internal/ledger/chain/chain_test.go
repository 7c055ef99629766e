package chain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket_ledger/internal/model"
)

func msg(id string, parent string) *model.Message {
	m := &model.Message{ID: id}
	if parent != "" {
		p := parent
		m.ParentID = &p
	}
	return m
}

func TestOrder_LinearChain(t *testing.T) {
	in := []*model.Message{msg("1", ""), msg("4", "1"), msg("5", "4"), msg("6", "5")}

	out, err := Order(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4", "5", "6"}, IDs(out))
}

func TestOrder_OutOfOrderArrival(t *testing.T) {
	in := []*model.Message{msg("6", "5"), msg("4", "1"), msg("1", ""), msg("5", "4")}

	out, err := Order(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4", "5", "6"}, IDs(out))
}

func TestOrder_BranchingKeepsSiblingInputOrder(t *testing.T) {
	in := []*model.Message{
		msg("r", ""),
		msg("b", "r"),
		msg("a", "r"),
		msg("b1", "b"),
		msg("a1", "a"),
		msg("c", "r"),
	}

	out, err := Order(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "b", "a", "c", "b1", "a1"}, IDs(out))
}

func TestOrder_DeterministicAndIdempotent(t *testing.T) {
	in := []*model.Message{msg("1", ""), msg("2", "1"), msg("3", "1"), msg("4", "2"), msg("5", "3")}

	first, err := Order(in)
	require.NoError(t, err)
	second, err := Order(in)
	require.NoError(t, err)
	assert.Equal(t, IDs(first), IDs(second))

	again, err := Order(first)
	require.NoError(t, err)
	assert.Equal(t, IDs(first), IDs(again))
}

func TestOrder_LinearChainAnyArrivalOrder(t *testing.T) {
	base := []*model.Message{msg("1", ""), msg("2", "1"), msg("3", "2"), msg("4", "3"), msg("5", "4")}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		in := append([]*model.Message(nil), base...)
		rng.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })

		out, err := Order(in)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, IDs(out))
	}
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	in := []*model.Message{msg("3", "2"), msg("1", ""), msg("2", "1")}
	before := IDs(in)

	_, err := Order(in)
	require.NoError(t, err)
	assert.Equal(t, before, IDs(in))
}

func TestOrder_NoRoot(t *testing.T) {
	_, err := Order([]*model.Message{msg("2", "1"), msg("1", "2")})
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = Order(nil)
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestOrder_MultipleRoots(t *testing.T) {
	_, err := Order([]*model.Message{msg("1", ""), msg("2", ""), msg("3", "1")})
	assert.ErrorIs(t, err, ErrMultipleRoots)
}

func TestOrder_Orphan(t *testing.T) {
	_, err := Order([]*model.Message{msg("1", ""), msg("2", "1"), msg("9", "99")})
	assert.ErrorIs(t, err, ErrOrphan)
	assert.Contains(t, err.Error(), "99")
}

func TestOrder_DetachedCycleIsOrphan(t *testing.T) {
	_, err := Order([]*model.Message{msg("1", ""), msg("7", "8"), msg("8", "7")})
	assert.ErrorIs(t, err, ErrOrphan)

	_, err = Order([]*model.Message{msg("1", ""), msg("5", "5")})
	assert.ErrorIs(t, err, ErrOrphan)
}

func TestOrder_DuplicateID(t *testing.T) {
	_, err := Order([]*model.Message{msg("1", ""), msg("2", "1"), msg("2", "1")})
	assert.ErrorIs(t, err, ErrDuplicateID)
}
