// Package events captures keyboard and pointer activity from the host's
// global input hook and appends every record, one JSON object per line, to
// the session's event logs.
package events
