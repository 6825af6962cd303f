// Package app wires the orchestration engine into a runnable
// application: logger construction, workflow loading by file extension,
// trace sink setup, and the run lifecycle. It is decoupled from any
// specific entrypoint like a CLI or server.
package app
