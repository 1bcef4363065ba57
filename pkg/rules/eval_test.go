package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphrule/pkg/graph"
)

func evalString(t *testing.T, src string, b *Bindings, opts Options) (any, error) {
	t.Helper()
	expr, err := ParseExpression(src)
	require.NoError(t, err)
	ev := &evaluator{g: graph.New(), b: b, opts: opts.normalize()}
	return ev.eval(expr)
}

func mustEval(t *testing.T, src string, b *Bindings) any {
	t.Helper()
	v, err := evalString(t, src, b, Options{})
	require.NoError(t, err)
	return v
}

// ========================================
// Literals, variables, property access
// ========================================

func TestEval_Literals(t *testing.T) {
	b := NewBindings()
	assert.Equal(t, int64(42), mustEval(t, `42`, b))
	assert.Equal(t, 2.5, mustEval(t, `2.5`, b))
	assert.Equal(t, "hi", mustEval(t, `"hi"`, b))
	assert.Equal(t, true, mustEval(t, `true`, b))
	assert.Nil(t, mustEval(t, `null`, b))
	assert.Equal(t, []any{int64(1), "a"}, mustEval(t, `[1, "a"]`, b))
}

func TestEval_PropertyAccess(t *testing.T) {
	g := graph.New()
	node, _ := g.AddNode("n1", "Person", map[string]any{"name": "Alice"})

	b := NewBindings()
	b.Set("p", node)

	assert.Equal(t, "Alice", mustEval(t, `p.name`, b))
	// Missing property is null, not an error
	assert.Nil(t, mustEval(t, `p.missing`, b))
}

func TestEval_PropertyAccessUnbound(t *testing.T) {
	_, err := evalString(t, `q.name`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrUnboundVariable)
}

func TestEval_PropertyAccessOnNonEntity(t *testing.T) {
	b := NewBindings()
	b.Set("s", "just a string")
	_, err := evalString(t, `s.name`, b, Options{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

// ========================================
// Three-valued logic
// ========================================

func TestEval_NullComparisons(t *testing.T) {
	b := NewBindings()
	assert.Nil(t, mustEval(t, `null = 1`, b))
	assert.Nil(t, mustEval(t, `1 <> null`, b))
	assert.Nil(t, mustEval(t, `null < 3`, b))
	assert.Nil(t, mustEval(t, `null = null`, b))
}

func TestEval_ThreeValuedAndOr(t *testing.T) {
	b := NewBindings()

	// AND truth table with null
	assert.Equal(t, false, mustEval(t, `null AND false`, b))
	assert.Nil(t, mustEval(t, `null AND true`, b))
	assert.Nil(t, mustEval(t, `null AND null`, b))
	assert.Equal(t, false, mustEval(t, `false AND null`, b))

	// OR truth table with null
	assert.Equal(t, true, mustEval(t, `null OR true`, b))
	assert.Nil(t, mustEval(t, `null OR false`, b))
	assert.Nil(t, mustEval(t, `null OR null`, b))
	assert.Equal(t, true, mustEval(t, `true OR null`, b))
}

func TestEval_NotAndIsNull(t *testing.T) {
	b := NewBindings()
	assert.Equal(t, false, mustEval(t, `NOT true`, b))
	assert.Nil(t, mustEval(t, `NOT null`, b))
	assert.Equal(t, true, mustEval(t, `null IS NULL`, b))
	assert.Equal(t, false, mustEval(t, `null IS NOT NULL`, b))
	assert.Equal(t, true, mustEval(t, `1 IS NOT NULL`, b))
}

// ========================================
// Comparison and coercion
// ========================================

func TestEval_NumericComparison(t *testing.T) {
	b := NewBindings()
	assert.Equal(t, true, mustEval(t, `1 < 2`, b))
	assert.Equal(t, true, mustEval(t, `2 <= 2`, b))
	assert.Equal(t, true, mustEval(t, `3 > 2.5`, b))
	assert.Equal(t, true, mustEval(t, `2 = 2.0`, b))
	assert.Equal(t, true, mustEval(t, `"abc" < "abd"`, b))
}

func TestEval_OrderingBooleansIsTypeError(t *testing.T) {
	_, err := evalString(t, `true < false`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestEval_CoercionOptIn(t *testing.T) {
	b := NewBindings()

	// Disabled: "42" is not 42
	assert.Equal(t, false, mustEval(t, `"42" = 42`, b))

	v, err := evalString(t, `"42" = 42`, b, Options{CoerceNumerics: true})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

// ========================================
// Arithmetic
// ========================================

func TestEval_Arithmetic(t *testing.T) {
	b := NewBindings()
	assert.Equal(t, int64(7), mustEval(t, `1 + 2 * 3`, b))
	assert.Equal(t, int64(2), mustEval(t, `7 / 3`, b))
	assert.Equal(t, int64(1), mustEval(t, `7 % 3`, b))
	assert.Equal(t, 3.5, mustEval(t, `7 / 2.0`, b))
	assert.Equal(t, int64(-4), mustEval(t, `-4`, b))
	assert.Equal(t, "ab", mustEval(t, `"a" + "b"`, b))
	assert.Nil(t, mustEval(t, `1 + null`, b))
}

func TestEval_DivisionByZero(t *testing.T) {
	_, err := evalString(t, `1 / 0`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrNumeric)

	_, err = evalString(t, `1 % 0`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrNumeric)

	_, err = evalString(t, `1.0 / 0.0`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrNumeric)
}

func TestEval_ArithmeticTypeError(t *testing.T) {
	_, err := evalString(t, `1 + true`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

// ========================================
// IN
// ========================================

func TestEval_In(t *testing.T) {
	b := NewBindings()
	assert.Equal(t, true, mustEval(t, `2 IN [1, 2, 3]`, b))
	assert.Equal(t, false, mustEval(t, `4 IN [1, 2, 3]`, b))

	// Unknown membership with a null element stays null
	assert.Nil(t, mustEval(t, `4 IN [1, null]`, b))
	assert.Equal(t, true, mustEval(t, `1 IN [1, null]`, b))
	assert.Nil(t, mustEval(t, `null IN [1, 2]`, b))
	assert.Nil(t, mustEval(t, `1 IN null`, b))
}

func TestEval_InRequiresList(t *testing.T) {
	_, err := evalString(t, `1 IN 2`, NewBindings(), Options{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
