package bufferpool

var _ Replacer = (*clock)(nil)

type slot struct {
	tracked    bool
	evictable  bool
	referenced bool
}

// clock is a second-chance replacer over frames [0, capacity). The hand
// clears a referenced slot on its first pass and takes it on the next.
type clock struct {
	slots     []slot
	hand      int
	evictable int
}

func newClock(capacity int) *clock {
	return &clock{slots: make([]slot, max(capacity, 1))}
}

func (c *clock) at(frame int) *slot {
	if frame < 0 || frame >= len(c.slots) {
		return nil
	}
	return &c.slots[frame]
}

func (c *clock) Touch(frame int) {
	if s := c.at(frame); s != nil {
		s.tracked, s.referenced = true, true
	}
}

func (c *clock) SetEvictable(frame int, evictable bool) {
	s := c.at(frame)
	if s == nil || !s.tracked || s.evictable == evictable {
		return
	}
	s.evictable = evictable
	if evictable {
		c.evictable++
	} else {
		c.evictable--
	}
}

// Victim picks an evictable frame and stops tracking it.
func (c *clock) Victim() (int, bool) {
	if c.evictable == 0 {
		return -1, false
	}
	for range 2 * len(c.slots) {
		frame := c.hand
		c.hand = (c.hand + 1) % len(c.slots)

		s := &c.slots[frame]
		switch {
		case !s.tracked || !s.evictable:
		case s.referenced:
			s.referenced = false
		default:
			c.Forget(frame)
			return frame, true
		}
	}
	return -1, false
}

func (c *clock) Forget(frame int) {
	s := c.at(frame)
	if s == nil || !s.tracked {
		return
	}
	if s.evictable {
		c.evictable--
	}
	*s = slot{}
}

func (c *clock) Evictable() int { return c.evictable }
