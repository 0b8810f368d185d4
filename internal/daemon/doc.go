// Package daemon wires the background services into a single supervised
// process: the durable task runner, the local HTTP API, the inbox poller
// that admits finished recordings, and the udev monitor that reacts to the
// recorder attaching. A flock-based lock enforces one instance per data
// directory.
package daemon
