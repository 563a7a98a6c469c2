// Package weather wraps the National Weather Service public API and exposes
// the weather tools built on it.
package weather
