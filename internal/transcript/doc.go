// Package transcript records completed chat turns. Turns are kept in a
// repository for the history endpoint and optionally published to a queue
// for downstream consumers.
package transcript
