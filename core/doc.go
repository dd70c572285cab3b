// Package core defines the shared contracts of the unitflow orchestration
// engine: the Unit invocation contract, the result Envelope every unit
// returns, the Slush payload threaded between steps, feedback signals, and
// the step/run records produced by the chain and pipeline runners.
//
// Everything in this package is transport-agnostic. Orchestration engines
// depend only on these types and never on concrete unit implementations.
package core
