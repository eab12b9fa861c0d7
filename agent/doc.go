// Package agent drives an automated play-testing run.
//
// A Controller owns one run of the perception-action loop. Each iteration
// captures a frame from the game, gathers a textual description of the UI,
// asks the configured decision provider for the next action, records the
// step in the session, hands the action to an executor and then waits before
// the next iteration.
//
// # Lifecycle
//
// A controller moves through these states:
//
//	Idle -> Initializing -> Capturing -> AwaitingDecision -> Acting -> Waiting -> Capturing ...
//	                                                                          \-> Stopped
//	                                                                          \-> Failed
//
// Start initializes the provider and opens a session; a provider error
// returns the controller to Idle. Run then ticks until the run ends. Stop is
// safe to call from another goroutine and is honoured at the next suspension
// point. A decision that arrives after Stop is discarded.
//
// # Failures
//
// A capture failure, a transport error, a non-success provider reply or an
// unparseable decision counts as a decision failure and is followed by a
// FailureBackoff pause. MaxConsecutiveFailures of them in a row end the run
// in the Failed state with ErrTooManyFailures. Execution errors are logged
// and reported through Callbacks.OnExecutionError but never counted.
//
// # Usage
//
//	c := agent.New(cfg, source, uiContext, exec,
//	    agent.WithLogger(logger),
//	    agent.WithCallbacks(agent.Callbacks{
//	        OnStep: func(step session.Step) { fmt.Println(step.Action) },
//	    }))
//	if err := c.Start(ctx); err != nil {
//	    // handle provider error
//	}
//	s, err := c.Run(ctx)
//
// The terminal subpackage provides an interactive front-end that prints
// steps and accepts a stop command.
package agent
