// Package radapter implements a client-side adapter over a Redis server (single node or
// cluster) that turns Redis primitives — streams, pub/sub, hashes, keys — into a typed,
// schema-organized interface for publishing time-stamped measurement streams, status,
// logs, and settings, and for receiving notifications when channels publish or streams
// receive new entries.
package radapter
