// Package serving exposes the trained penguin classifier over HTTP.
//
// Artifacts are loaded once at startup and shared read-only by every
// request. Each POST /predict request is validated, encoded with the
// same feature encoder used for training, classified and decoded back
// to a species name.
package serving
