// Package services provides the centralized service registry for trackd.
//
// The registry wires the coordinator, its collaborators, and the entity
// store together once at startup; the command surface and the HTTP API
// both resolve services through it instead of constructing their own.
package services
