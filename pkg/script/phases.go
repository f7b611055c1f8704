package script

import "strings"

// Phase is a named bucket of device commands with a fixed execution order.
type Phase int

const (
	PhasePreTrans Phase = iota
	PhaseTrans
	PhasePreTrans2
	PhaseTrans2
	PhasePostTrans
	PhasePostTrans2
	PhaseRollback
)

// Script markers. The device's batch format wraps the whole script in a
// try/rollback/end bracket: a failure anywhere records the last error in the
// device's result record and jumps to the rollback section.
const (
	MarkerPreamble = "try"
	MarkerBegin    = "begin transaction"
	MarkerCommit   = "commit transaction"
	MarkerRollback = "rollback"
	MarkerFinale   = "end"
)

// IControlCall is an out-of-band REST call the submitter performs alongside
// the command script (file uploads, async import triggers).
type IControlCall struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Body   string `json:"body,omitempty"`
}

// Script is the synthesized, phase-partitioned command set for one tenant.
// Assembly order is fixed: preamble, preTrans, trans (bracketed), preTrans2,
// trans2 (bracketed, only when non-empty), postTrans, postTrans2, rollback,
// finale.
type Script struct {
	PreTrans   []*Command
	Trans      []*Command
	PreTrans2  []*Command
	Trans2     []*Command
	PostTrans  []*Command
	PostTrans2 []*Command
	Rollback   []*Command

	IControlCalls  []IControlCall
	WhitelistFiles []string
}

// Empty reports whether the script carries no commands at all.
func (s *Script) Empty() bool {
	return len(s.PreTrans) == 0 && len(s.Trans) == 0 && len(s.Trans2) == 0 &&
		len(s.PostTrans) == 0 && len(s.PostTrans2) == 0
}

// Commands counts the forward commands across all phases, rollback excluded.
func (s *Script) Commands() int {
	return len(s.PreTrans) + len(s.Trans) + len(s.PreTrans2) + len(s.Trans2) +
		len(s.PostTrans) + len(s.PostTrans2)
}

// add appends a command to a phase. Rollback commands use pushRollback /
// appendRollback instead, since their ordering is dependency-directed.
func (s *Script) add(phase Phase, cmd *Command) {
	switch phase {
	case PhasePreTrans:
		s.PreTrans = append(s.PreTrans, cmd)
	case PhaseTrans:
		s.Trans = append(s.Trans, cmd)
	case PhasePreTrans2:
		s.PreTrans2 = append(s.PreTrans2, cmd)
	case PhaseTrans2:
		s.Trans2 = append(s.Trans2, cmd)
	case PhasePostTrans:
		s.PostTrans = append(s.PostTrans, cmd)
	case PhasePostTrans2:
		s.PostTrans2 = append(s.PostTrans2, cmd)
	case PhaseRollback:
		s.Rollback = append(s.Rollback, cmd)
	}
}

// addFront prepends a command to a phase (containers must precede their
// contents; non-transactional blobs must lead the transaction).
func (s *Script) addFront(phase Phase, cmd *Command) {
	switch phase {
	case PhasePreTrans:
		s.PreTrans = append([]*Command{cmd}, s.PreTrans...)
	case PhaseTrans:
		s.Trans = append([]*Command{cmd}, s.Trans...)
	default:
		s.add(phase, cmd)
	}
}

// pushRollback prepends an inverse command: undo for work done late in the
// forward script runs early in rollback.
func (s *Script) pushRollback(cmd *Command) {
	s.Rollback = append([]*Command{cmd}, s.Rollback...)
}

// appendRollback appends an inverse command: undo for work done at the very
// start of the forward script (partition creation) runs last.
func (s *Script) appendRollback(cmd *Command) {
	s.Rollback = append(s.Rollback, cmd)
}

// Assemble serializes the script in its fixed phase order.
func (s *Script) Assemble() string {
	var text []string
	appendCmds := func(cmds []*Command) {
		for _, c := range cmds {
			for _, sub := range c.Split() {
				text = append(text, sub.String())
			}
		}
	}

	text = append(text, MarkerPreamble)
	appendCmds(s.PreTrans)
	text = append(text, MarkerBegin)
	appendCmds(s.Trans)
	text = append(text, MarkerCommit)
	if len(s.Trans2) > 0 {
		appendCmds(s.PreTrans2)
		text = append(text, MarkerBegin)
		appendCmds(s.Trans2)
		text = append(text, MarkerCommit)
	}
	appendCmds(s.PostTrans)
	appendCmds(s.PostTrans2)
	text = append(text, MarkerRollback)
	appendCmds(s.Rollback)
	text = append(text, MarkerFinale)

	return strings.Join(text, "\n")
}
