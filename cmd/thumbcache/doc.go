// Command thumbcache manages the freedesktop thumbnail cache from the
// command line. It shares configuration, cache layout and locking with the
// server, so both can run against the same cache at once.
//
// Usage:
//
//	thumbcache [-v] [-config FILE] <command> [options] [args]
//
// Commands:
//
//	generate [-r] [-cache-only] [-size large|normal] [-workers N] PATH...
//	        Generate thumbnails for files and the images inside
//	        directories. With -cache-only nothing is generated; each image
//	        is reported as cached, failed or missing.
//
//	locate FILE...
//	        Print the cache key, URI, tier files and embedded attributes.
//
//	invalidate FILE...
//	        Remove every cache entry for the files, including fail entries.
//
//	rotate [-degrees N] FILE...
//	        Rotate images in place (clockwise, multiples of 90) and drop
//	        their thumbnails. Camera RAW files are refused.
//
//	index [DIR]
//	        Refresh the image index for DIR (default MEDIA_DIR).
//
//	stats   Show per-tier file counts and sizes and the index size.
//
//	version Print build information.
//
// Exit status is 0 on success, 1 when any item failed and 2 on usage
// errors.
//
// Configuration is read the same way as the server: defaults, then the
// TOML file named by THUMBCACHE_CONFIG (or -config), then environment
// variables.
package main
