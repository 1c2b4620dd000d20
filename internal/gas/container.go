package gas

import (
	"math"

	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
)

const timeEpsilon = 1e-9

// timeline is one duration and tick countdown.
type timeline struct {
	total     float64
	remaining float64
	period    float64
	untilTick float64
	maxTicks  int // effect.UnboundedTicks for infinite effects
	executed  int
}

func newTimeline(total float64, ticks int, period float64) timeline {
	if period <= 0 {
		ticks = 0
	}
	return timeline{
		total:     total,
		remaining: total,
		period:    period,
		untilTick: period,
		maxTicks:  ticks,
	}
}

func (t *timeline) owesTick() bool {
	return t.period > 0 && (t.maxTicks == effect.UnboundedTicks || t.executed < t.maxTicks)
}

// advance moves the timeline dt seconds forward and returns the ticks that
// came due. On expiry, ticks still owed by the schedule fire at once so a
// full duration always yields the full tick count.
func (t *timeline) advance(dt float64, infinite bool) (fired int, expired bool) {
	if !infinite {
		t.remaining -= dt
	}
	if t.period > 0 {
		t.untilTick -= dt
		for t.untilTick <= timeEpsilon && t.owesTick() {
			fired++
			t.executed++
			t.untilTick += t.period
		}
	}
	if !infinite && t.remaining <= timeEpsilon {
		expired = true
		for t.owesTick() {
			fired++
			t.executed++
		}
	}
	return fired, expired
}

// fireNow executes one tick outside the countdown.
func (t *timeline) fireNow() bool {
	if !t.owesTick() {
		return false
	}
	t.executed++
	return true
}

func (t *timeline) refresh(total float64, ticks int) {
	t.total = total
	t.remaining = total
	t.untilTick = t.period
	if t.period > 0 && t.maxTicks != effect.UnboundedTicks {
		t.maxTicks = t.executed + ticks
	}
}

func (t *timeline) extend(d float64) {
	t.total += d
	t.remaining += d
	if t.period > 0 && t.maxTicks != effect.UnboundedTicks {
		t.maxTicks += int(math.Floor(d/t.period + timeEpsilon))
	}
}

// packet is one stack's timeline in a partitioned or independent container.
type packet struct {
	timeline
	tracked attribute.Value
}

// execution is a batch of instant applications owed by a tick. p is the
// packet the impact is tracked against, nil for the container itself.
type execution struct {
	p     *packet
	count int
}

type tickUpdate struct {
	execs   []execution
	expired []*packet
	done    bool
}

// Container is the runtime record of one applied durational or infinite
// effect. It owns its spec.
//
// NonStacking and IncrementalStacking containers keep a single timeline and
// a stack count; incremental containers execute one application per stack
// on each tick. PartitionedStacking and IndependentDurations keep one packet
// per stack that expires on its own, oldest first. Partitioned containers
// share one tick clock across packets when the effect shares ticks or
// re-applies with StackRefresh.
type Container struct {
	id       uint64
	spec     *effect.Spec
	kind     effect.StackingPolicy
	infinite bool
	ticks    int
	period   float64

	single  timeline
	stacks  int
	packets []*packet
	shared  bool
	clock   timeline
	tracked attribute.Value

	ongoing bool
	active  bool
}

func newContainer(id uint64, spec *effect.Spec, duration float64, ticks int, period float64) *Container {
	ge := spec.Effect
	c := &Container{
		id:       id,
		spec:     spec,
		kind:     ge.Duration.Stacking,
		infinite: ge.Duration.Policy == effect.Infinite,
		ticks:    ticks,
		period:   period,
		active:   true,
	}
	switch c.kind {
	case effect.PartitionedStacking:
		c.shared = ge.Duration.ShareTicks || ge.Impact.ReApplication == effect.StackRefresh
	case effect.IndependentDurations:
	default:
		c.single = newTimeline(duration, ticks, period)
	}
	if c.shared {
		c.clock = newTimeline(math.Inf(1), effect.UnboundedTicks, period)
	}
	return c
}

func (c *Container) partitioned() bool {
	return c.kind == effect.PartitionedStacking || c.kind == effect.IndependentDurations
}

// ID returns the container's identifier, unique within a world.
func (c *Container) ID() uint64 { return c.id }

// Spec returns the owned spec.
func (c *Container) Spec() *effect.Spec { return c.spec }

// Effect returns the applied effect.
func (c *Container) Effect() *effect.GameplayEffect { return c.spec.Effect }

// Active reports whether the container is still on its system's shelf.
func (c *Container) Active() bool { return c.active }

// Ongoing reports whether ongoing requirements were met at the last check.
func (c *Container) Ongoing() bool { return c.ongoing }

// Stacks returns the current stack count.
func (c *Container) Stacks() int {
	if c.partitioned() {
		return len(c.packets)
	}
	return c.stacks
}

// DurationRemaining returns the remaining duration; the longest packet for
// partitioned containers.
func (c *Container) DurationRemaining() float64 {
	if !c.partitioned() {
		return c.single.remaining
	}
	var rem float64
	for _, p := range c.packets {
		rem = math.Max(rem, p.remaining)
	}
	return rem
}

// TotalDuration returns the duration the container was last set to.
func (c *Container) TotalDuration() float64 {
	if !c.partitioned() {
		return c.single.total
	}
	var total float64
	for _, p := range c.packets {
		total = math.Max(total, p.total)
	}
	return total
}

// Period returns the tick period, 0 for non-periodic effects.
func (c *Container) Period() float64 { return c.period }

// TimeUntilTick returns the time until the next tick.
func (c *Container) TimeUntilTick() float64 {
	switch {
	case !c.partitioned():
		return c.single.untilTick
	case c.shared:
		return c.clock.untilTick
	default:
		next := math.Inf(1)
		for _, p := range c.packets {
			next = math.Min(next, p.untilTick)
		}
		return next
	}
}

// TicksExecuted returns the ticks fired so far by the single timeline or
// the shared clock.
func (c *Container) TicksExecuted() int {
	if c.shared {
		return c.clock.executed
	}
	if !c.partitioned() {
		return c.single.executed
	}
	n := 0
	for _, p := range c.packets {
		n += p.executed
	}
	return n
}

// TrackedImpact returns the committed impact accumulated so far.
func (c *Container) TrackedImpact() attribute.Value {
	total := c.tracked
	for _, p := range c.packets {
		total = total.Add(p.tracked)
	}
	return total
}

func (c *Container) track(p *packet, delta attribute.Value) {
	if p == nil {
		c.tracked = c.tracked.Add(delta)
		return
	}
	p.tracked = p.tracked.Add(delta)
}

func (c *Container) perTick() int {
	if c.kind == effect.IncrementalStacking {
		return max(c.stacks, 1)
	}
	return 1
}

func (c *Container) maxStacks() int {
	if c.kind == effect.NonStacking {
		return 1
	}
	if m := c.spec.Effect.Duration.MaxStacks; m > 0 {
		return m
	}
	return math.MaxInt
}

// updateTimeRemaining advances the container by dt seconds.
func (c *Container) updateTimeRemaining(dt float64) tickUpdate {
	var u tickUpdate
	if !c.partitioned() {
		fired, expired := c.single.advance(dt, c.infinite)
		if fired > 0 {
			u.execs = append(u.execs, execution{count: fired * c.perTick()})
		}
		u.done = expired
		return u
	}

	if c.shared && len(c.packets) > 0 {
		if fired, _ := c.clock.advance(dt, true); fired > 0 {
			u.execs = append(u.execs, execution{count: fired * len(c.packets)})
		}
	}
	kept := c.packets[:0]
	for _, p := range c.packets {
		fired, expired := p.advance(dt, c.infinite)
		if fired > 0 {
			u.execs = append(u.execs, execution{p: p, count: fired})
		}
		if expired {
			u.expired = append(u.expired, p)
			continue
		}
		kept = append(kept, p)
	}
	c.packets = kept
	u.done = len(c.packets) == 0
	return u
}

// fireOnApplication executes the first tick immediately.
func (c *Container) fireOnApplication() []execution {
	switch {
	case !c.partitioned():
		if c.single.fireNow() {
			return []execution{{count: c.perTick()}}
		}
	case c.shared:
		if c.clock.fireNow() {
			return []execution{{count: len(c.packets)}}
		}
	default:
		var out []execution
		for _, p := range c.packets {
			if p.fireNow() {
				out = append(out, execution{p: p, count: 1})
			}
		}
		return out
	}
	return nil
}

// addStacks adds up to n stacks. For partitioned containers it returns the
// new packets and the packets evicted to respect MaxStacks.
func (c *Container) addStacks(n int, duration float64) (added int, newPackets, evicted []*packet) {
	if n <= 0 {
		return 0, nil, nil
	}
	if !c.partitioned() {
		before := c.stacks
		c.stacks = min(c.stacks+n, c.maxStacks())
		return c.stacks - before, nil, nil
	}

	ticks, period := c.ticks, c.period
	if c.shared {
		ticks, period = 0, 0
	}
	for range n {
		p := &packet{timeline: newTimeline(duration, ticks, period)}
		c.packets = append(c.packets, p)
		newPackets = append(newPackets, p)
	}
	if over := len(c.packets) - c.maxStacks(); over > 0 {
		evicted = append(evicted, c.packets[:over]...)
		c.packets = append([]*packet(nil), c.packets[over:]...)
		kept := newPackets[:0]
		for _, p := range newPackets {
			if !containsPacket(evicted, p) {
				kept = append(kept, p)
			}
		}
		newPackets = kept
	}
	return len(newPackets), newPackets, evicted
}

// removeStacks drops the n oldest packets of a partitioned container, or
// lowers the stack count of a single-timeline one.
func (c *Container) removeStacks(n int) (removed []*packet) {
	if n <= 0 {
		return nil
	}
	if !c.partitioned() {
		c.stacks = max(c.stacks-n, 0)
		return nil
	}
	n = min(n, len(c.packets))
	removed = append(removed, c.packets[:n]...)
	c.packets = append([]*packet(nil), c.packets[n:]...)
	return removed
}

func (c *Container) refresh(duration float64) {
	if !c.partitioned() {
		c.single.refresh(duration, c.ticks)
		return
	}
	ticks := c.ticks
	if c.shared {
		ticks = 0
	}
	for _, p := range c.packets {
		p.refresh(duration, ticks)
	}
}

func (c *Container) extend(d float64) {
	if !c.partitioned() {
		c.single.extend(d)
		return
	}
	for _, p := range c.packets {
		p.extend(d)
	}
}

func containsPacket(list []*packet, p *packet) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}
