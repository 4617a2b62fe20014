// Package agent contains the tool-calling agent runtime: an Agent definition,
// a Runner that drives the model until it stops requesting tools, and the
// run items and stream events the runner produces along the way.
package agent
