// Package correlate decides whether an action produced the expected event on each
// subscriber's connection.
//
// A Claim names the event type and an optional Predicate over the event payload. The
// Correlator either waits for each subscriber until its event arrives (ModeAwait) or waits
// for a fixed settle window and then inspects what arrived (ModeFixedSettle). Either way the
// outcome for each subscriber is a Verdict, which also records duplicate deliveries and
// events of the right type with the wrong content.
package correlate
