package abi

import "github.com/hotdoglinux/amiganarrator/internal/abierr"

// milestone identifies one step of the guest state machine described in
// spec.md §4.5: rt_Init -> MakeLibrary -> AddTask -> task body -> Wait ->
// GetMsg -> (library-internal DSP) -> BeginIO(CMD_WRITE)* -> ReplyMsg ->
// halt.
type milestone int

const (
	milestoneNone milestone = iota
	milestoneMakeLibrary
	milestoneAddTask
	milestoneWait
	milestoneGetMsg
	milestoneReplyMsg
)

// sequencer enforces that boot milestones fire in order exactly once,
// except BeginIO(CMD_WRITE) which is explicitly exempted and may fire
// many times (spec.md §4.5).
type sequencer struct {
	reached milestone
}

func newSequencer() *sequencer {
	return &sequencer{reached: milestoneNone}
}

// Advance records that m has fired, failing if m is out of order relative
// to what has already happened. BeginIO does not call Advance, so it is
// never checked here; Advance(milestoneNone) always fails.
func (s *sequencer) Advance(m milestone) error {
	if m <= s.reached {
		return abierr.Newf(abierr.ABI, "ABI call out of order: milestone %d reached after %d", m, s.reached)
	}
	s.reached = m
	return nil
}
