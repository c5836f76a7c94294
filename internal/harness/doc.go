// Package harness replays scripted sync scenarios against a real engine and
// records what the user would have seen.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: new_requisitions_alert
//	description: "Growth between polls raises one alert"
//	user: { username: gestora, name: Gestora, role: gestor }
//	remote: 5
//	steps:
//	  - do: start
//	  - do: poll
//	    remote: 7
//	  - do: advance
//	    wait: 10s
//	assertions:
//	  - type: trace_count
//	    event: alert
//	    count: 1
//	  - type: final_state
//	    expect: { state: polling, count: 7, baseline: 7 }
//
// remote is the number of fixture requisitions the fake API serves; a step's
// remote field changes it before the step runs. cache seeds the local cache
// with that many fixtures before the session starts.
//
// # Steps
//
//   - start: begin a session for the scenario user
//   - stop: end the session
//   - poll: one background poll (may alert)
//   - refresh: one explicit load (never alerts)
//   - create: save a new requisition (client, fitter, type)
//   - delete: delete a requisition by id
//   - advance: move the fake clock forward by wait
//   - click: click the visible toast, which refreshes
//
// fail on poll, refresh, create or delete scripts a remote failure for that
// step. expect.error requires the step to fail with a message containing it.
//
// # Assertion Types
//
//   - trace_contains: an event with the given name whose result includes the given fields
//   - trace_order: events appear in the given order
//   - trace_count: an event appears exactly N times
//   - final_state: engine and toast state after the last step
//
// # Deterministic Testing
//
// Every scenario runs with a manual clock, fixed requisition ids, an
// in-memory cache and a scripted remote, so traces are identical across
// runs and can be compared with golden files.
package harness
