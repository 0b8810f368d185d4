// Command capnote is the CLI companion to capnoted. It talks to the daemon's
// local HTTP API for record operations and works directly with configuration
// for offline utilities.
package main
