package uid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsUniquePerCall(t *testing.T) {
	a := New("donny")
	b := New("donny")

	require.Equal(t, "donny", a.Name)
	require.NotEqual(t, a.InstanceID, b.InstanceID)
	require.False(t, a.Equals(b))
}

func TestStringParseRoundTrip(t *testing.T) {
	u := New("gretchen").WithRegion("us-east")

	parsed, err := Parse(u.String())
	require.NoError(t, err)
	require.True(t, u.Equals(parsed))
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("no-slash-here")
	require.Error(t, err)
}

func TestLookupKeyStableForEqualUIDs(t *testing.T) {
	u := New("arbiter")
	require.Equal(t, u.LookupKey(), u.LookupKey())

	other := New("arbiter")
	require.NotEqual(t, u.LookupKey(), other.LookupKey())
}

func TestIsZero(t *testing.T) {
	var zero UID
	require.True(t, zero.IsZero())
	require.False(t, New("a").IsZero())
}
