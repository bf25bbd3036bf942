// Package communityworkflows embeds community-contributed workflow definitions.
//
// Community workflows are contributed via PRs and embedded at compile time alongside the
// built-in workflows, but kept in a separate package to distinguish governance and origin.
// Users opt in to specific community workflows by trigger through the workflows.community
// config field.
package communityworkflows

import (
	"embed"
	"io/fs"
)

// registryTemplates embeds every community workflow file under workflows/*.yaml.
//
//go:embed workflows
var registryTemplates embed.FS

// RegistryFS returns the embedded filesystem containing community workflow definitions.
func RegistryFS() fs.FS {
	return registryTemplates
}
