// Package mockbackend is an in-memory stand-in for the social media backend: registration and
// login with JWT tokens, posts, likes, comments, the feed, and the real-time event stream.
//
// It is used by this repository's tests, and by the mock-backend command for trying the
// harness locally. Faults can be configured to make it misbehave in the ways the harness is
// supposed to detect, such as dropped or duplicated events.
package mockbackend
