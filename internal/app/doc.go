// Package app provides the relay's use cases.
//
// Registry owns the local connection table and mirrors it into the shared membership set.
// Relay fans the shared channel out to local connections, Sessions runs the per-client
// receive loop, Notifier sends the periodic notification and Coordinator drives the
// time-bounded shutdown. Depends on domain interfaces, not concrete brokers or transports.
package app
