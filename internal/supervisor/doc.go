// Package supervisor runs yt-dlp as a managed child process.
//
// Each download is a Session with its own identifier, event stream and
// single-use cancellation slot. Both output streams are drained
// concurrently; every non-empty line is forwarded as an output event and
// "[download] NN.N%" lines additionally yield progress events that are
// strictly increasing within the session.
//
// A Supervisor tracks sessions by ID and admits one active download at a
// time; a second Start while one is running fails with a busy error.
package supervisor
