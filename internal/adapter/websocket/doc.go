// Package websocket carries client connections over gorilla/websocket.
//
// Conn adapts a *websocket.Conn to domain.Conn with context-bounded writes and a ping
// keepalive. Handler upgrades GET /ws requests, enforces the per-instance connection cap
// and closes rejected connections with a status code the client can tell apart.
package websocket
