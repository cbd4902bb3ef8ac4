/*
Package process starts a shell command line as an operating system process and connects its standard streams.

Each Handle owns exactly one process and must be reaped with Wait. Streams given in Options are copied by Wait itself,
which is the preferred mode: Wait then returns no later than WaitDelay after the process exits, even if a descendant
keeps the output pipes open. For streams not given in Options the Handle exposes a pipe instead. The caller writes to
Stdin and closes it, reads Stdout and Stderr concurrently to completion, and only then calls Wait.

The process is placed in its own process group. When the context passed to Start is done, or Kill is called, the whole
group is killed. Descendants that left the group (for example with setsid) are not killed, but once WaitDelay expires
Wait closes the pipes and stops waiting for them.
*/
package process
