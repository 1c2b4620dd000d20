package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Arithmetic(t *testing.T) {
	a := Value{Current: 10, Base: 20}
	b := Value{Current: 2, Base: 4}

	assert.Equal(t, Value{12, 24}, a.Add(b))
	assert.Equal(t, Value{8, 16}, a.Sub(b))
	assert.Equal(t, Value{20, 80}, a.Mul(b))
	assert.Equal(t, Value{5, 10}, a.Scale(0.5))
	assert.Equal(t, Value{-10, -20}, a.Negate())
	assert.True(t, Value{}.IsZero())
	assert.True(t, a.ApproxEqual(Value{10.0000001, 20}, 1e-6))
}

func TestAttribute_Clamp(t *testing.T) {
	tests := []struct {
		name    string
		attr    *Attribute
		in      Value
		want    float64
		changed bool
	}{
		{"unlimited", New("X"), Value{-50, 100}, -50, false},
		{"zero to base low", NewBounded("HP", ZeroToBase, 0, 0), Value{-20, 100}, 0, true},
		{"zero to base high", NewBounded("HP", ZeroToBase, 0, 0), Value{120, 100}, 100, true},
		{"zero to base inside", NewBounded("HP", ZeroToBase, 0, 0), Value{70, 100}, 70, false},
		{"floor to base", NewBounded("HP", FloorToBase, 1, 0), Value{0, 100}, 1, true},
		{"zero to ceil", NewBounded("Rage", ZeroToCeil, 0, 50), Value{80, 10}, 50, true},
		{"floor to ceil", NewBounded("Temp", FloorToCeil, -10, 10), Value{-30, 0}, -10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := tt.attr.Clamp(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Current)
			assert.Equal(t, tt.in.Base, got.Base)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestAttribute_ClampUnknownPolicy(t *testing.T) {
	a := &Attribute{Name: "Broken", Overflow: OverflowPolicy(42)}
	_, _, err := a.Clamp(Value{1, 1})
	assert.Error(t, err)
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("zerotobase")
	require.NoError(t, err)
	assert.Equal(t, ZeroToBase, p)

	p, err = ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Unlimited, p)

	_, err = ParseOverflowPolicy("Sometimes")
	assert.Error(t, err)
	assert.Equal(t, "FloorToCeil", FloorToCeil.String())
}
