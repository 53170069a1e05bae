// Package logs reads the slipstream log file for the CLI.
//
// Last reads the final N lines with bounded memory, Follow polls for lines
// appended after an offset, and a Filter narrows either to one backup
// session. Rotation by lumberjack truncates the file; Follow restarts from
// the beginning when the file shrinks below its offset.
package logs
