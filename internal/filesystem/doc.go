/*
Package filesystem wraps os.Stat and os.ReadFile with retry logic for NFS
stale file handle errors (ESTALE).

Media libraries are often NFS mounts, and a scan that races a server-side
change sees ESTALE on files that are still there. The scanner stats media
through StatWithRetry and the subtitle processor reads files through
ReadFileWithRetry:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Only ESTALE is retried, with exponential backoff capped at MaxBackoff. Every
other error is returned on the first attempt. Retries, recoveries and final
failures are counted in the subtitle_indexer_filesystem_* metrics.
*/
package filesystem
