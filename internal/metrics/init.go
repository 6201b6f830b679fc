package metrics

// Tier label values. They mirror the cache subdirectory names.
var tierLabels = []string{"large", "normal", "fail"}

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first scrape.
func InitializeMetrics() {
	for _, result := range []string{"hit", "miss", "fail", "cache_only_miss", "generated", "generate_failed"} {
		ThumbnailLookupsTotal.WithLabelValues(result)
	}

	for _, outcome := range []string{"success", "failed", "settled", "restored", "write_error"} {
		ThumbnailGenerationsTotal.WithLabelValues(outcome)
	}

	for _, phase := range []string{"decode", "resize", "encode", "total"} {
		ThumbnailGenerationDuration.WithLabelValues(phase)
	}

	for _, codec := range []string{"vips", "raster", "svg"} {
		ThumbnailDecodeByCodec.WithLabelValues(codec, "success")
		ThumbnailDecodeByCodec.WithLabelValues(codec, "error")
	}

	for _, status := range []string{"success", "error", "invalid"} {
		ThumbnailRotations.WithLabelValues(status)
	}

	for _, tier := range tierLabels {
		ThumbnailCacheFiles.WithLabelValues(tier)
		ThumbnailCacheBytes.WithLabelValues(tier)
	}

	for _, op := range []string{"upsert_image", "get_image", "list_images", "count_images", "delete_stale"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, result := range []string{"cached", "generated", "failed", "skipped"} {
		BatchItemsTotal.WithLabelValues(result)
	}

	volumes := []string{"photos", "cache", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open", "read"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
