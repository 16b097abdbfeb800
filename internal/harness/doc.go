// Package harness runs behavioral scenarios against the real synchronization
// engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: trust_overlay
//	description: "Trusting the active domain lifts all blocking"
//	setup:
//	  mode: custom
//	  categories: [comments, social]
//	  trusted: [news.example]
//	events:
//	  - event: activeDomainChanged
//	    domain: news.example
//	expect:
//	  fallback: true
//	  resyncs: 2
//
// Events use the notification names exchanged with the host application.
// trustDomain, untrustDomain and activeDomainChanged take a domain,
// setCategories takes a category list.
//
// # Expectations
//
//   - fallback: the artifact holds the empty ruleset
//   - categories: the artifact is the merge of these category files, in order
//   - paused, mode: the final activity and persisted mode
//   - resyncs: the number of resyncs, the startup one included
//
// # Deterministic Testing
//
// Every scenario runs in its own temporary directory with a fresh SQLite
// store, a generated asset tree unless the scenario names one, a fixed resync
// ID and the engine's logical clock.  The harness flushes the engine after
// each event, so every event that changes the desired ruleset produces
// exactly one resync.  This keeps golden snapshots stable across runs.
//
// # Usage
//
//	s, err := harness.LoadScenario("testdata/scenarios/trust_overlay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := harness.Run(ctx, s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range res.Errors {
//	    log.Println(msg)
//	}
package harness
