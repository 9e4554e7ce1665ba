// Package server implements the realtime fanout layer: an identity-aware
// connection registry, transport rooms synchronized from workspace
// membership at admission, and the emit primitives request handlers use to
// push domain events to collaborators.
//
// The implementation is organized into specialized files for configuration,
// the registry, rooms, fanout, clients, routing, and HTTP handlers.
package server
