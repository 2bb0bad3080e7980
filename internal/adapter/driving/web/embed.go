// Package web serves the embedded static control panel page.
package web

import "embed"

// StaticFS holds the embedded control panel assets.
//
//go:embed static/*
var StaticFS embed.FS
