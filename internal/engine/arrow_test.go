package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteArrow_RoundTrip(t *testing.T) {
	src := mustLoad(t, Generate(300, 11))

	var buf bytes.Buffer
	require.NoError(t, src.WriteArrow(&buf))

	got, err := LoadReader(&buf, WithFormat(FormatArrow), WithSource("roundtrip"))
	require.NoError(t, err)
	require.Equal(t, src.Len(), got.Len())
	require.Equal(t, src.All().Tracks(), got.All().Tracks())
	require.NotEqual(t, src.LoadID, got.LoadID)
}

func TestWriteArrow_Empty(t *testing.T) {
	src := mustLoad(t, nil)

	var buf bytes.Buffer
	require.NoError(t, src.WriteArrow(&buf))

	got, err := LoadReader(&buf, WithFormat(FormatArrow))
	require.NoError(t, err)
	require.Equal(t, 0, got.Len())
}

func TestArrowSchema(t *testing.T) {
	sc := ArrowSchema()
	require.Equal(t, len(Columns()), sc.NumFields())
	require.Equal(t, "artist", sc.Field(0).Name)
	require.Equal(t, "most_played_on", sc.Field(sc.NumFields()-1).Name)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(200, 5)
	b := Generate(200, 5)
	c := Generate(200, 6)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)

	_, err := Load(a)
	require.NoError(t, err)
}
