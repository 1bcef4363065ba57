package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindingSet(variable string, values ...string) []*Bindings {
	set := make([]*Bindings, 0, len(values))
	for _, v := range values {
		b := NewBindings()
		b.Set(variable, v)
		set = append(set, b)
	}
	return set
}

func TestCombine_ProductSize(t *testing.T) {
	sets := [][]*Bindings{
		bindingSet("a", "a1", "a2"),
		bindingSet("b", "b1", "b2", "b3"),
		bindingSet("c", "c1"),
	}

	combined := combineBindings(sets)
	assert.Len(t, combined, 6)

	// Every tuple carries all three names
	for _, b := range combined {
		assert.Equal(t, []string{"a", "b", "c"}, b.Names())
	}
}

func TestCombine_EmptySetAnnihilates(t *testing.T) {
	sets := [][]*Bindings{
		bindingSet("a", "a1", "a2"),
		{},
	}
	assert.Empty(t, combineBindings(sets))
	assert.Empty(t, combineBindings(nil))
}

func TestCombine_LexicographicOrder(t *testing.T) {
	sets := [][]*Bindings{
		bindingSet("a", "a1", "a2"),
		bindingSet("b", "b1", "b2"),
	}

	combined := combineBindings(sets)
	require.Len(t, combined, 4)

	var order []string
	for _, b := range combined {
		av, _ := b.Get("a")
		bv, _ := b.Get("b")
		order = append(order, fmt.Sprintf("%v/%v", av, bv))
	}
	assert.Equal(t, []string{"a1/b1", "a1/b2", "a2/b1", "a2/b2"}, order)
}

func TestCombine_NoDeduplication(t *testing.T) {
	// Repeated patterns produce identical tuples; they must all survive
	same := bindingSet("x", "v", "v")
	combined := combineBindings([][]*Bindings{same})
	assert.Len(t, combined, 2)
}

func TestCombine_LaterSetOverwritesSharedName(t *testing.T) {
	first := bindingSet("x", "old")
	second := bindingSet("x", "new")

	combined := combineBindings([][]*Bindings{first, second})
	require.Len(t, combined, 1)
	v, _ := combined[0].Get("x")
	assert.Equal(t, "new", v)
}

func TestCombine_TuplesAreIndependent(t *testing.T) {
	sets := [][]*Bindings{bindingSet("a", "a1"), bindingSet("b", "b1")}
	combined := combineBindings(sets)
	require.Len(t, combined, 1)

	// Mutating the product must not leak back into the source sets
	combined[0].Set("a", "mutated")
	v, _ := sets[0][0].Get("a")
	assert.Equal(t, "a1", v)
}
