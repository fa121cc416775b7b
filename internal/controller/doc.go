// Package controller runs a cage: it waits for tagged subjects to enter the
// chamber, arbitrates the entrance reward, runs one trial per head-plate
// contact and rolls the day over at the configured hour.
//
// ARCHITECTURE:
//
// One goroutine owns everything. Run is a polling loop: every hardware wait
// is WaitForEdge with a short timeout followed by a fresh read of the level,
// so the loop observes cancellation between polls. Cancellation is honoured
// only while idle (between visits) and while waiting for a stuck subject to
// leave; a trial in progress always runs to completion.
//
// SAFETY:
//
// Every trial runs inside hw.Actuators.Guard. Any error or panic in the
// trial body forces the clamp, LED and valve low and stops the camera before
// the error is logged; the loop then carries on. Run forces every output low
// before it returns, whatever the reason.
//
// State transitions:
//
//	Idle -> Entered -> ArbitratingEntranceReward -> AwaitingContact
//	AwaitingContact -> Clamping -> ClampFailed -> AwaitingContact
//	AwaitingContact -> Clamping -> Recording -> Releasing -> AwaitingContact
//	AwaitingContact -> AwaitingExit -> Idle
package controller
