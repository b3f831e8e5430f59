// Package cache implements a keyed registry of device-resident textures.
//
// A Registry maps string keys to device handles produced by a Loader and
// uploaded through a device.Backend. Registries never own a memory limit:
// every byte they upload is admitted by a shared budget.Coordinator, which
// may ask all registries to drop their unpinned entries to make room.
//
// # Entry lifecycle
//
//	absent   --Get miss--> resident
//	resident --Lock-->     pinned   --Unlock to 0--> resident
//	resident --Unload-->   unloaded --Get-->         resident
//	resident --sweep-->    evicted
//	any      --Remove-->   evicted
//
// Pinned entries are never chosen by a sweep or by EvictLRU. Remove always
// wins, pinned or not.
//
// # Locking
//
// Every registry sharing a coordinator is guarded by the coordinator lock.
// Decoding through the Loader happens outside of it; admission, upload and
// insertion happen inside one critical section so that no other registry
// can consume the freed bytes in between.
package cache
