// Package process starts and stops the managed server as a plain operating
// system process.
//
// Launch detaches the server into its own session on Unix (or a new, detached
// process group on Windows) so it outlives the invoking shell. Its stdout and
// stderr are appended to the configured log file and stdin is the null device.
//
// Stopping is the reverse of a process supervisor: there is no handle to the
// child, so the Finder scans the whole process table for command lines that
// contain the match substring and the Terminator signals every hit. The match
// is a plain substring test, so unrelated processes whose arguments contain the
// same text are matched too, as are multiple server instances.
//
// On Windows only termination is available: every signal name maps to a hard
// kill because the operating system has no equivalent of SIGTERM for arbitrary
// processes.
package process
