// Package features tracks the feature UUIDs a node advertises.
//
// Each feature is a 16-byte UUID stored in a caller-owned Feature slot.
// The Registry links and unlinks slots without allocating, so the caller
// decides how long a feature lives:
//
//	var sensor features.Feature
//	reg := features.NewRegistry()
//	if !reg.Add(&sensor, sensorFeatureUUID) {
//		// duplicate UUID or slot already registered
//	}
//	defer reg.Remove(&sensor)
//
// # Hash
//
// Hash summarizes the registered set as the 32-bit sum of every UUID byte.
// Addition is commutative, so the hash does not depend on registration
// order. Peers compare hashes from announcements to decide whether to
// fetch the full feature list.
//
// # Availability
//
// A feature can be marked unavailable. It stays registered, counted and
// hashed, but Get skips it, so feature-list pages omit it.
package features
