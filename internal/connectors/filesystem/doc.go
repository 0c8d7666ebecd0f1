// Package filesystem watches and scans local directories for the change
// watcher.
//
// The Notifier delivers native change events through fsnotify. fsnotify does
// not watch recursively, so every non-hidden sub-directory is added on start
// and new directories are added as they appear. The Scanner lists files with
// their modification times for the periodic full-scan fallback, which catches
// changes on filesystems where notifications are unreliable (network mounts,
// some container volumes).
//
// Hidden files and directories (leading dot) are ignored by both.
package filesystem
