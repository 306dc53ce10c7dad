// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"adr-workers/pkg/registry"
)

func main() {
	registryPath := flag.String("registry", "configs/activity-registry.json", "Path to activity registry")
	activityID := flag.String("id", "", "Activity ID to scaffold")
	outputDir := flag.String("output", "internal/workers", "Output directory")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *activityID == "" {
		fmt.Println("Usage: worker-generator -id <activity-id> [-registry path] [-output dir] [-force]")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry: %v\n", err)
		os.Exit(1)
	}
	activity, ok := reg.Find(*activityID)
	if !ok {
		fmt.Printf("Activity %s not found in registry\n", *activityID)
		os.Exit(1)
	}

	files, err := Scaffold(*activity)
	if err != nil {
		fmt.Printf("Error rendering worker: %v\n", err)
		os.Exit(1)
	}

	workerDir := filepath.Join(*outputDir, activity.Category, activity.ID)
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(workerDir, name)
		if _, err := os.Stat(path); err == nil && !*force {
			fmt.Printf("- Skipped %s (exists, use -force)\n", path)
			continue
		}
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			fmt.Printf("Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("✓ Generated %s\n", path)
	}

	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement Service and fill Output in handler.go\n")
	fmt.Printf("  2. Register the handler in cmd/worker-manager/main.go\n")
	fmt.Printf("  3. Add the worker to configs/config.yaml and pkg/registry/catalog.go\n")
}
