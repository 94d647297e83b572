// Package appfs embeds the files the binary needs at runtime.
package appfs

import "embed"

//go:embed all:assets migrations
var FS embed.FS
