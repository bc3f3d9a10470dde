package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClock_EvictableCount(t *testing.T) {
	c := newClock(4)
	c.Touch(0)
	c.Touch(1)
	require.Zero(t, c.Evictable())

	c.SetEvictable(0, true)
	c.SetEvictable(1, true)
	c.SetEvictable(1, true)
	require.Equal(t, 2, c.Evictable())

	c.SetEvictable(0, false)
	require.Equal(t, 1, c.Evictable())

	t.Run("untracked and out of range frames are ignored", func(t *testing.T) {
		c.SetEvictable(3, true)
		c.Forget(3)
		c.Touch(-1)
		c.Touch(4)
		require.Equal(t, 1, c.Evictable())
	})
}

func TestClock_VictimNeedsEvictableFrame(t *testing.T) {
	c := newClock(2)
	c.Touch(0)
	c.Touch(1)

	_, ok := c.Victim()
	require.False(t, ok)

	c.SetEvictable(1, true)
	frame, ok := c.Victim()
	require.True(t, ok)
	require.Equal(t, 1, frame)
}

func TestClock_SecondChance(t *testing.T) {
	c := newClock(3)
	for i := range 3 {
		c.Touch(i)
		c.SetEvictable(i, true)
	}

	// the first sweep only clears reference bits
	frame, ok := c.Victim()
	require.True(t, ok)
	require.Equal(t, 0, frame)

	c.Touch(1)
	var order []int
	for {
		frame, ok := c.Victim()
		if !ok {
			break
		}
		order = append(order, frame)
	}
	require.Equal(t, []int{2, 1}, order)
	require.Zero(t, c.Evictable())
}

func TestClock_ForgetEvictable(t *testing.T) {
	c := newClock(2)
	c.Touch(0)
	c.SetEvictable(0, true)
	c.Forget(0)
	require.Zero(t, c.Evictable())

	_, ok := c.Victim()
	require.False(t, ok)
}
