// Package config loads the two settings files of a cage.
//
// Cage settings describe the hardware: pin assignments, the tag reader port
// and where data is saved. They live in a JSON file that may carry comments
// and trailing commas, and change only when the cage is rewired.
//
// Experiment settings describe the protocol: reward sizes, head-fix
// probability, timings, camera parameters and the stimulus. They are YAML,
// decoded strictly over stock defaults and checked against an embedded CUE
// schema before use.
package config
