// Package servicedef defines the JSON shapes and URL paths of the backend API that the harness
// drives, including the payloads carried by real-time event frames. Both the HTTP client and
// the mock backend use these definitions, so they cannot drift apart.
package servicedef
