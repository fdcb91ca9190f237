// Package config loads and watches the pagespeed tool's YAML config file.
//
// Top-level types:
//   - Config{Client, Query, Output}: full config tree parsed from YAML
//   - ClientConfig: base_url, timeout, auth (apikey|header|none, key_env), tls
//   - QueryConfig: urls, locale, strategy, interval (0 = run once)
//   - OutputConfig: format (json|yaml|text|prom), path (empty = stdout)
//
// Load(path) reads the file, applies defaults (60s timeout, en_US, desktop,
// json), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory and calls
// onChange with the newly parsed Config whenever the file is written or an
// editor renames a new copy over it.
package config
