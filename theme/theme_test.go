package theme_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Maokus/MVMNT-sub000/theme"
)

func TestTheme_ColorClamps(t *testing.T) {
	th := theme.New()

	require.Equal(t, th.Color(0), th.Color(-1))
	require.Equal(t, th.Color(1), th.Color(2))
	require.NotEqual(t, th.Color(0), th.Color(1))
}

func TestTheme_VelocityMapsFullRange(t *testing.T) {
	th := theme.New()

	require.Equal(t, th.Color(0), th.Velocity(0))
	require.Equal(t, th.Color(1), th.Velocity(127))
}
