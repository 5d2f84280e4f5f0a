// Package scenario contains the scripted real-time scenario: simulated users register, open
// event streams, act on a post through the HTTP API, and every user's stream is checked for
// the resulting events.
//
// Each step is a check in the framework package's sense. Steps that later checks depend on
// (user setup, stream setup, and the actions themselves) ignore check filters, and a failure
// during user or stream setup aborts the run.
package scenario
