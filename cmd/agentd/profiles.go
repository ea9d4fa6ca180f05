package main

import (
	"agentd/internal/profile"
	"agentd/pkg/types"
)

// Built-in profiles used when none are configured. The fallback trades
// capability for footprint so a degraded host keeps answering.
func defaultOriginalProfile() profile.Profile {
	return profile.Profile{
		Name: "standard",
		Resources: []types.ResourceSpec{
			{ID: "qwen2.5:14b", Name: "Qwen 2.5 14B", SizeMB: 9600, Priority: types.PriorityHigh, Capabilities: []string{"tools"}},
			{ID: "qwen2.5:7b", Name: "Qwen 2.5 7B", SizeMB: 4700, Priority: types.PriorityCritical, Capabilities: []string{"tools"}},
			{ID: "nomic-embed-text", Name: "Nomic Embed", SizeMB: 600, Priority: types.PriorityNormal, Capabilities: []string{"embedding"}},
		},
		Roles: map[string]string{
			"general":   "qwen2.5:14b",
			"router":    "qwen2.5:7b",
			"embedding": "nomic-embed-text",
		},
	}
}

func defaultFallbackProfile() profile.Profile {
	return profile.Profile{
		Name: "conservative",
		Resources: []types.ResourceSpec{
			{ID: "qwen2.5:7b", Name: "Qwen 2.5 7B", SizeMB: 4700, Priority: types.PriorityCritical, Capabilities: []string{"tools"}},
			{ID: "nomic-embed-text", Name: "Nomic Embed", SizeMB: 600, Priority: types.PriorityNormal, Capabilities: []string{"embedding"}},
		},
		Roles: map[string]string{
			"general":   "qwen2.5:7b",
			"router":    "qwen2.5:7b",
			"embedding": "nomic-embed-text",
		},
	}
}
