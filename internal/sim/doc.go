// Package sim is a simulated cage: digital inputs played back from a
// timeline, recorded outputs, and stand-ins for the tag reader, camera,
// notifier and trigger.
//
// Everything is driven by a testutil.ManualClock. Edge waits jump the clock
// to the next scheduled transition instead of blocking, so a full day of
// controller activity runs in milliseconds and produces identical traces on
// every run. The scenario harness and the controller tests are built on it.
package sim
