// Package vramcache caches decoded images as device-resident textures under
// one process-wide memory budget.
//
// Independent registries (one per kind of resource: source images, computed
// outputs, thumbnails) share a single budget.Coordinator. When an upload does
// not fit, every unpinned resident entry in every registry is evicted and the
// request is re-checked. Entries in use are pinned and never evicted.
//
// # Quick Start
//
//	ctx := context.Background()
//	sys, _ := vramcache.Open(ctx, vramcache.WithSettingsURI("settings.db"))
//	defer sys.Close()
//
//	store := blobstore.NewLocalStore("./images")
//	sources, _ := sys.NewRegistry("sources", source.NewLoader(store))
//
//	h, _ := sources.Acquire(ctx, "lena.png") // pinned while in use
//	defer sources.Unlock("lena.png")
//
// # Budget
//
// The budget is read from the settings store when the System opens
// (module "ImagesCollection", key "MaxDeviceOccupancy", 768 MiB by default)
// and saved back on Close. SetMaxBytes changes it at runtime; lowering it
// below current usage evicts nothing until the next admission needs room.
//
// # Packages
//
//   - cache: the per-resource-kind registry with LRU recency and pinning
//   - budget: the shared byte budget and eviction sweep
//   - device: image formats, handles and the host-memory reference backend
//   - imageio: codecs (PNG, JPEG, GIF, BMP, TIFF, WebP, NetPBM, RAW)
//   - blobstore: where source images live (local, memory, MinIO, S3)
//   - source: cache.Loader and cache.Persister over a blobstore
//   - settings: persisted budget (file, SQLite, DynamoDB)
//   - watch: unloads entries whose source files change
package vramcache
