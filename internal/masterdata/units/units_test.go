package units

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	require.True(t, Valid(Piece))
	require.True(t, Valid(Kg))
	require.False(t, Valid("dozen"))
	require.False(t, Valid(""))
}

func TestListCoversEveryUnit(t *testing.T) {
	list := List()
	require.NotEmpty(t, list)
	for _, u := range list {
		require.True(t, Valid(u))
	}
}
