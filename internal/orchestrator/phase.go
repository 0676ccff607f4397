package orchestrator

import "github.com/gbos-io/gbos/internal/runstate"

// phase marks where within the canonical workflow path (spec §4.7) a run
// enters runWorkflow's loop. Fresh runs always start at phaseAuth; resumed
// runs are dispatched by startPhaseFor.
type phase int

const (
	phaseAuth phase = iota
	phaseWorkspace
	phaseCycle // begin a full task cycle at fetch_task
	phaseGeneratePrompt
	phaseRunAgent
	phasePostProcess
	phaseRunTests
	phaseCommitPush
	phaseReportStatus
)

// startPhaseFor implements spec §4.7's resume dispatch: "fall through from
// the loaded state to the end of the canonical path." ok is false for
// states resume can never enter (idle, completed, failed).
//
// paused resumes at phasePostProcess rather than phaseRunAgent: the
// source's runWorkflow dispatch would re-enter stageRunAgent and invoke
// the agent a second time if loaded in RUN_AGENT (spec §9's first Open
// Question). This implementation picks the documented canonical policy of
// treating a resumed RUN_AGENT (and therefore a resumed paused-after-
// run_agent) as "continue from post-processing" — the agent is never
// re-invoked on resume.
func startPhaseFor(s runstate.State) (phase, bool) {
	switch s {
	case runstate.StateAuthConfig:
		return phaseWorkspace, true
	case runstate.StateWorkspaceReady:
		return phaseCycle, true
	case runstate.StateFetchTask:
		return phaseGeneratePrompt, true
	case runstate.StateGeneratePrompt:
		return phaseRunAgent, true
	case runstate.StateRunAgent:
		return phasePostProcess, true
	case runstate.StatePostProcess:
		return phaseRunTests, true
	case runstate.StateRunTests:
		return phaseCommitPush, true
	case runstate.StateCommitPush:
		return phaseReportStatus, true
	case runstate.StateReportStatus:
		return phaseCycle, true
	case runstate.StatePaused:
		return phasePostProcess, true
	default:
		return 0, false
	}
}
