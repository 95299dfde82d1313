// Package pipeline turns one request into a deployed web app.
//
// An [Orchestrator] runs the phases of a request strictly in sequence, each
// gated on the previous one:
//
//	idea:          plan → implement → build → deploy
//	specification: spec_analysis → implement → build → deploy
//
// Before each phase it publishes a progress event; after each phase it
// advances the session status (planning → implementing → building →
// deploying → done). The first failure aborts the run, moves the session to
// error and is returned as one [errors.PhaseError]. Nothing is retried.
//
// [Orchestrator.Cancel] marks the user's session cancelled at once, sends
// SIGTERM to the running child (SIGKILL after the grace window) and cancels
// the run context so no later phase starts. Whatever the interrupted phase
// reports afterwards is ignored.
//
// # Usage
//
//	o, _ := pipeline.New(pipeline.Config{
//	    Sessions:    store,
//	    Bus:         bus,
//	    Generator:   gen,
//	    Builder:     builder,
//	    Deployer:    deployer,
//	    ProjectRoot: "/srv/tinytree",
//	}, pipeline.WithLogger(logger))
//
//	res, err := o.Execute(ctx, pipeline.Request{
//	    RequestID: id, UserID: "U1", ChannelID: "C1",
//	    Mode: session.ModeLight, Idea: "a habit tracker",
//	})
package pipeline
