// Package logtail reads the tail of the log file and parses its JSON lines
// back into entries for the control surface's logs view.
//
// Read keeps a ring buffer of the last maxLines lines, so memory stays
// proportional to the window rather than the file. A missing file reads as
// empty.
//
// Parse understands the entries the logging package writes:
//
//	{"level":"warn","ts":"2024-10-10T14:32:15.123+0200","logger":"remote","caller":"remote/client.go:318","msg":"poll failed","loop":"queue"}
//
// Keys other than level, ts, logger, caller and msg become Fields, sorted by
// key. A line that is not a JSON object is kept as an entry whose Message is
// the raw text.
package logtail
