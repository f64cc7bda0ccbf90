// Package service runs the device announcement protocol for one node.
//
// A Service owns a single worker goroutine that serializes everything with
// mutable protocol state:
//   - actions queued by radio receive callbacks (queries, describe and
//     feature list requests, announcements heard from other nodes)
//   - periodic self-announcements on every registered interface
//   - the single outstanding send and its completion
//   - radio sleep coordination
//
// Receive callbacks never block. They copy the packet into an action and
// hand it to the worker over a small bounded queue; when the queue is full
// the packet is dropped.
//
// Example usage:
//
//	pool, _ := arbiter.New(1)
//	cfg := service.DefaultConfig()
//	cfg.Features = registry
//
//	svc, err := service.New(node, pool, cfg)
//	svc.AddAnnouncer(&announcer, radio, nil, 300)
//	go svc.Run(ctx)
//
// # Scheduling
//
// Each announcer announces after a tenth of its period, then four times
// after a fifth of it, then once per period. The worker waits for the
// soonest due announcer, bounded by Config.PollPeriod.
package service
