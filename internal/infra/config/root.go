package config

import (
	"os"
	"path/filepath"
)

// projectMarkers identify a project root when walking up from the working directory.
var projectMarkers = []string{"go.mod", ".git", "langgraph.json"}

// ProjectRoot resolves the project root. GRAPH_FLEET_ROOT wins when it names
// an existing directory; otherwise the nearest ancestor of the working
// directory holding a project marker; otherwise the working directory.
func ProjectRoot() string {
	if v := os.Getenv("GRAPH_FLEET_ROOT"); v != "" {
		if abs, err := filepath.Abs(v); err == nil {
			if info, err := os.Stat(abs); err == nil && info.IsDir() {
				return abs
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := wd; ; {
		for _, m := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd
		}
		dir = parent
	}
}

// RegionFromEnv returns the ambient region override for provider, if any.
func RegionFromEnv(provider string) string {
	switch provider {
	case "aws":
		return os.Getenv("AWS_REGION")
	case "gcp":
		return os.Getenv("GOOGLE_CLOUD_REGION")
	case "azure":
		return os.Getenv("AZURE_LOCATION")
	}
	return ""
}

// AmbientEnv returns provider identifiers set in the process environment
// (GOOGLE_CLOUD_PROJECT, AZURE_SUBSCRIPTION_ID). Minted values take precedence.
func AmbientEnv(provider string) map[string]string {
	out := map[string]string{}
	switch provider {
	case "gcp":
		if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
			out["GOOGLE_CLOUD_PROJECT"] = v
		}
	case "azure":
		if v := os.Getenv("AZURE_SUBSCRIPTION_ID"); v != "" {
			out["AZURE_SUBSCRIPTION_ID"] = v
		}
	}
	return out
}
