/*
Package filesystem wraps the os calls used to read source images with retry
logic for NFS stale file handle errors.

Photo libraries are often NFS mounts. An ESTALE error (errno 116) while a
list view populates hundreds of thumbnails should not turn into a permanent
fail sentinel, so Stat, Open and ReadFile are retried with exponential
backoff before the error is handed back. Any other error is returned on the
first attempt.

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

Metrics are reported through an Observer installed with SetObserver; the
VolumeResolver maps paths to low-cardinality volume labels ("cache",
"photos", ...).
*/
package filesystem
