// Package terminal is the interactive command-line front-end for a play-test
// run.
//
// It prints each recorded step, decision failures and the final report
// location, and reads commands from its input while the run is in
// progress:
//
//	/stop, /quit, /exit   end the run after the current step
//	/status               print the controller state
//
// End of input stops reading commands but leaves the run going, so an
// unattended run can be started with stdin closed.
package terminal
