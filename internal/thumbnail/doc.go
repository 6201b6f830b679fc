/*
Package thumbnail generates and caches image thumbnails in the freedesktop
thumbnail layout, so entries are shared with file managers and other
viewers that use the same cache.

# Layout

	$XDG_CACHE_HOME/thumbnails/   (or $HOME/.cache/thumbnails/)
	├── large/<md5>.png     longer edge at most 256px
	├── normal/<md5>.png    longer edge at most 128px, derived from large
	└── fail/<md5>.png      1x1 sentinel for sources that cannot be decoded

The digest is the MD5 of "file://" followed by the absolute source path.
Every PNG carries Thumb::URI, Thumb::MTime, Thumb::Size, Thumb::Mimetype,
Software and, when known, Thumb::Image::Width and Thumb::Image::Height as
tEXt chunks.

# Components

Store owns the directory tree and the per-key lock. Decoder chooses a
Codec (libvips, pure Go raster, SVG), decodes at a bounded size and applies
EXIF orientation. Generator settles a key by writing Large and Normal, or a
Fail sentinel. Service is what callers use:

	store := thumbnail.NewStore(thumbnail.DefaultCacheHome())
	svc := thumbnail.New(store, thumbnail.NewDecoder())

	img, ok := svc.GetThumbnail("/photos/cat.jpg", false)

A Fail entry is permanent until Invalidate or Rotate removes it, so a
broken file is decoded at most once.

# Concurrency

Lookups are plain stat calls. "Check, decode, write" runs under the
store's per-key lock, and Service deduplicates concurrent requests for the
same key with singleflight. Batch fans misses out over a bounded errgroup
and streams results back on a channel.
*/
package thumbnail
