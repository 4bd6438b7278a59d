// Package engine turns a setup into an ordered queue of action calls and
// executes it.
//
// # Overview
//
// A run goes through four phases:
//
//  1. Select - Pick the groups and, per group, the steps to process
//  2. Queue - Resolve every step to an action and a resolved config (BuildQueue)
//  3. Gate - Check the queue against policy and ask for confirmation (Confirm)
//  4. Execute - Invoke the calls one after another, stopping at the first error (Execute)
//
// Run chains all four phases.
//
// # Group and Step Selection
//
// Without explicit groups every top level key of the setup is a group,
// except keys starting with an underscore. Those hold shared definitions.
// The steps of a group come from its "steps" list when present, otherwise
// from the group's own keys:
//
//	{
//	  "web": {
//	    "steps": ["install"],
//	    "install": {"command": "apt-get", "args": ["install", "-y", "nginx"]}
//	  }
//	}
//
// When explicit steps are given there must be exactly one list per group.
//
// # Resolution
//
// Each step is looked up in the step map (StepResolver), which names the
// action and the config key within the group. The config block is resolved
// against the payload by the ConfigResolver. Resolution never modifies the
// setup, so two steps sharing one config block each see the raw block.
//
// # Error Classification
//
// Everything that stops a run is an EngineError of class fatal carrying a
// code:
//
//	if engine.ErrorCode(err) == engine.ErrCodeConfigNotFound {
//	    // a step refers to a config block its group does not define
//	}
//
// The command line maps any fatal error to exit status 1 using ExitCode. A
// declined confirmation is not an error.
//
// # Observation
//
// An Observer sees the run start and finish and every call around its
// invocation. The telemetry package provides one that logs, records
// metrics, traces and publishes events.
package engine
