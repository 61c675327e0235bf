package component

import (
	"testing"

	"github.com/hashicorp/go-set/v3"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestAttr_CoerceInt(t *testing.T) {
	a := Attr{Name: "n", Kind: KindInt, ReadWrite: true}

	v, err := a.Validate(5)
	require.NoError(t, err)
	require.Equal(t, 5, v)

	v, err = a.Validate(5.0)
	require.NoError(t, err)
	require.Equal(t, 5, v)

	_, err = a.Validate(5.5)
	require.Error(t, err)

	_, err = a.Validate("5")
	require.Error(t, err)
}

func TestAttr_ValidateRejectsReadOnly(t *testing.T) {
	a := Attr{Name: "n", Kind: KindInt, ReadWrite: false}
	_, err := a.Validate(1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not writable")
}

func TestAttr_ValidateBounds(t *testing.T) {
	a := Attr{Name: "n", Kind: KindFloat, ReadWrite: true, Min: ptr(0), Max: ptr(10)}

	_, err := a.Validate(5.0)
	require.NoError(t, err)

	_, err = a.Validate(-1.0)
	require.Error(t, err)

	_, err = a.Validate(11.0)
	require.Error(t, err)
}

func TestAttr_ValidateAllowedSet(t *testing.T) {
	allowed := set.New[string](2)
	allowed.InsertSlice([]string{"a", "b"})
	a := Attr{Name: "mode", Kind: KindString, ReadWrite: true, AllowedSet: allowed}

	_, err := a.Validate("a")
	require.NoError(t, err)

	_, err = a.Validate("c")
	require.Error(t, err)
}

func TestAttr_CoerceNil(t *testing.T) {
	a := Attr{Name: "n", Kind: KindInt, ReadWrite: true}
	_, err := a.Coerce(nil)
	require.Error(t, err)
}
