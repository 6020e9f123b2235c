// Package headless runs browsing tasks without a user in the loop.
//
// A Service owns the request path: it admits each task through the browser
// pool, runs the agent loop in the issued session and always returns the
// session, whatever happened inside the loop.
//
//	┌─────────────────────────────────────────────┐
//	│                  Service                     │
//	│  - pool admission                            │
//	│  - request ids                               │
//	│  - artifacts                                 │
//	└──────────────────┬──────────────────────────┘
//	                   │
//	                   ▼
//	        ┌──────────────────────┐
//	        │      agent.Loop      │
//	        └──────────────────────┘
//
// Example usage:
//
//	pool := browser.NewPool(browser.NewPlaywrightEngine(opts), opts.MaxSessions, logger, collector)
//	loop := agent.NewLoop(provider, executor, agent.WithSummarizer(summarizer))
//	svc, err := headless.New(pool, loop, agent.DefaultBudgets())
//	if err != nil {
//	    return err
//	}
//	defer svc.Shutdown()
//
//	res, err := svc.Run(ctx, "Find the release date of Go 1.24")
//
// Artifacts:
//
// When enabled, the artifact writer stores each run as <request-id>.json and
// a human-readable <request-id>.md under the output directory.
package headless
