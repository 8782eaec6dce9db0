package invoice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceFormat(t *testing.T) {
	require.Equal(t, "INV-000001", Reference(1))
	require.Equal(t, "INV-000042", Reference(42))
	require.Equal(t, "INV-1000000", Reference(1000000))
}
