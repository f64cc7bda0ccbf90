// Package radio defines the transport collaborator used by the device
// announcement protocol.
//
// A Layer is one radio interface (or anything that behaves like one): it
// hands out payload space in pre-allocated messages, sends them
// asynchronously and dispatches received packets to registered receivers by
// active-message type (AMID).
//
// # Execution contexts
//
// Receive callbacks run in the layer's own context, asynchronously to the
// caller, and must never block. Send completion callbacks are called exactly
// once for every Send that returned nil.
//
// # Power management
//
// A layer may power its radio down when idle. Users that need the radio to
// stay up register a SleepController and call BlockSleep/AllowSleep around
// their transmissions; Started reports whether the radio is currently up.
//
// # Addressing
//
//	┌──────────┬──────────┬──────┬──────────────────┐
//	│ dst (2B) │ src (2B) │ AMID │ payload          │
//	└──────────┴──────────┴──────┴──────────────────┘
//
// Addresses are 16-bit active-message addresses. Broadcast is 0xFFFF.
package radio
