// Package harness runs cage scenarios against the real controller.
//
// A scenario is a YAML file describing a virtual morning in a cage: when
// each subject arrives and leaves, when it touches the head plate, what the
// head-fix draws come out as, and which experiment settings apply. The
// harness builds a simulated cage (see package sim), runs the controller on
// a manual clock until the scenario's stop offset, then evaluates the
// scenario's assertions against the resulting event log, output history,
// statistics files and event archive.
//
// # Determinism
//
// Nothing in a scenario run reads the wall clock or a random source. Two
// runs of the same scenario produce byte-identical snapshots, which makes
// them suitable for golden file comparison:
//
//	go test ./internal/harness -update
//
// regenerates the files under testdata/golden.
//
// # Assertions
//
//   - event_order: labels appear in order for a tag (gaps allowed)
//   - event_count: a label is archived exactly N times
//   - counter: a subject's statistics counter has a value
//   - action_count: an output or device action happened N times
//   - outputs_low: every output ended low
package harness
