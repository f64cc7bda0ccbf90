// Package persistence stores node state that must survive restarts: the
// boot counter, accumulated lifetime and the availability of features
// toggled at runtime.
package persistence
