// Package redis implements the shared broker on Redis.
//
// The global membership set is a plain Redis set and the broadcast channel is a Redis
// Pub/Sub channel. Every command passes through MetricsHook and CircuitBreakerHook.
package redis
