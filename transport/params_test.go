package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testParams() *Params {
	min1, min0, max777 := 1.0, 0.0, float64(0o777)
	specs := map[string]ParamSpec{
		"interval":    {Kind: KindFloat, Min: &min1},
		"permissions": {Kind: KindInt, Min: &min0, Max: &max777},
		"group_id":    {Kind: KindString},
		"address":     {Kind: KindString, ReadOnly: true},
	}
	return NewParams(specs, map[string]any{
		"interval":    float64(10),
		"permissions": int64(0o640),
		"group_id":    "",
		"address":     "",
	})
}

func TestParams_SetAndGet(t *testing.T) {
	p := testParams()
	require.NoError(t, p.Set("interval", 30))
	v, err := p.Get("interval")
	require.NoError(t, err)
	require.Equal(t, float64(30), v)

	require.NoError(t, p.Set("permissions", 0o777))
	require.Equal(t, int64(0o777), p.Int("permissions"))

	require.NoError(t, p.Set("group_id", "siem"))
	require.Equal(t, "siem", p.Str("group_id"))
}

func TestParams_BoundsEnforced(t *testing.T) {
	p := testParams()
	require.ErrorIs(t, p.Set("interval", 0), ErrInvalidParameterValue)
	require.ErrorIs(t, p.Set("permissions", 0o1000), ErrInvalidParameterValue)
	require.ErrorIs(t, p.Set("permissions", -1), ErrInvalidParameterValue)

	// The failed writes left the previous values in place.
	require.Equal(t, float64(10), p.Float("interval"))
	require.Equal(t, int64(0o640), p.Int("permissions"))
}

func TestParams_TypeMembership(t *testing.T) {
	p := testParams()
	require.ErrorIs(t, p.Set("interval", "fast"), ErrInvalidParameterValue)
	require.ErrorIs(t, p.Set("group_id", 5), ErrInvalidParameterValue)
	// Floats are not silently truncated into an int parameter.
	require.ErrorIs(t, p.Set("permissions", 420.5), ErrInvalidParameterValue)
	// Ints are accepted where floats are expected.
	require.NoError(t, p.Set("interval", int64(2)))
	require.Equal(t, float64(2), p.Float("interval"))
}

func TestParams_UnknownName(t *testing.T) {
	p := testParams()
	require.ErrorIs(t, p.Set("nonexistent", 1), ErrUnknownParameter)
	_, err := p.Get("nonexistent")
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestParams_ReadOnly(t *testing.T) {
	p := testParams()
	require.ErrorIs(t, p.Set("address", "10.0.0.1:80"), ErrInvalidParameterValue)

	// The owning backend updates it through Store.
	p.Store("address", "10.0.0.1:80")
	v, err := p.Get("address")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:80", v)
}

func TestParams_Duration(t *testing.T) {
	p := testParams()
	require.NoError(t, p.Set("interval", 1.5))
	require.Equal(t, 1500*time.Millisecond, p.Duration("interval"))
}
