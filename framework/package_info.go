// Package framework contains the low-level check-runner infrastructure used by the scenario.
//
// The general model is:
//
// 1. A run is a tree of named checks. Each check has a TestID (its path in the tree) and ends
// up passed, failed, or skipped, with any number of error messages.
//
// 2. A Context is similar to Go's *testing.T: it implements the TestingT interface used by
// the testify assert and require packages, it can run subchecks, and it captures debug output
// that is only shown if the check fails (or if verbose output was requested).
//
// 3. A check can abort the whole run when it discovers that nothing after it can meaningfully
// proceed, such as a failed login. All checks started after that are skipped.
//
// The domain-specific code that knows what is being verified lives in the scenario package.
package framework
