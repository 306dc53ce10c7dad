package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"adr-workers/pkg/registry"
)

const defaultPath = "configs/activity-registry.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(os.Args[2:])
	case "update":
		err = runUpdate(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	default:
		help()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func load(path string) (*registry.ActivityRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	path := fs.String("path", defaultPath, "Path to registry file")
	id := fs.String("id", "", "Activity ID (e.g., export-ledger)")
	displayName := fs.String("displayName", "", "Display Name")
	description := fs.String("description", "", "Description")
	category := fs.String("category", "", "Category (e.g., reminders)")
	taskType := fs.String("taskType", "", "Zeebe task type (defaults to id)")
	version := fs.String("version", "1.0.0", "Version")
	status := fs.String("status", registry.StatusPlanned, "Implementation Status (planned, in-progress, completed, verified)")
	_ = fs.Parse(args)

	if *id == "" || *displayName == "" || *description == "" || *category == "" {
		fs.Usage()
		return fmt.Errorf("id, displayName, description and category are required for add")
	}
	if *taskType == "" {
		*taskType = *id
	}

	reg, err := registry.LoadRegistry(*path)
	if os.IsNotExist(err) {
		reg, err = &registry.ActivityRegistry{Version: registry.CatalogVersion}, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	err = reg.Add(registry.Activity{
		ID:                   *id,
		DisplayName:          *displayName,
		Description:          *description,
		Category:             *category,
		Version:              *version,
		TaskType:             *taskType,
		ImplementationStatus: *status,
		InputSchema:          map[string]interface{}{},
		OutputVariables:      []string{},
		ErrorCodes:           []string{},
		Timeout:              "10s",
		Workflows:            []string{},
		Tags:                 []string{},
	}, time.Now())
	if err != nil {
		return err
	}
	if err := registry.Save(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Added activity: %s\n", *id)
	return nil
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	path := fs.String("path", defaultPath, "Path to registry file")
	id := fs.String("id", "", "Activity ID to update")
	field := fs.String("field", "", "Field to update (status, version, timeout, retries, ...)")
	value := fs.String("value", "", "New value for the field")
	_ = fs.Parse(args)

	if *id == "" || *field == "" || *value == "" {
		fs.Usage()
		return fmt.Errorf("id, field and value are required for update")
	}
	reg, err := load(*path)
	if err != nil {
		return err
	}
	if err := reg.Update(*id, *field, *value, time.Now()); err != nil {
		return err
	}
	if err := registry.Save(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Updated activity %s, field %s to %s\n", *id, *field, *value)
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := fs.String("path", defaultPath, "Path to registry file")
	_ = fs.Parse(args)

	reg, err := load(*path)
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

// runGenerate rewrites the registry from the worker catalog compiled into
// this binary.
func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	path := fs.String("path", defaultPath, "Path to registry file")
	_ = fs.Parse(args)

	reg := registry.Default(time.Now().UTC().Format(time.RFC3339))
	if err := registry.Save(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Wrote %d activities to %s\n", len(reg.Activities), *path)
	return nil
}

// runCheck fails when the registry file has drifted from the workers.
func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	path := fs.String("path", defaultPath, "Path to registry file")
	_ = fs.Parse(args)

	reg, err := load(*path)
	if err != nil {
		return err
	}
	drift := reg.Drift(registry.Catalog())
	for _, d := range drift {
		fmt.Println("  " + d)
	}
	if len(drift) > 0 {
		return fmt.Errorf("registry is out of date, run: registry-updater generate -path %s", *path)
	}
	fmt.Println("Registry matches the worker catalog.")
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add       Add a new activity to the registry
  update    Update an existing activity's field
  validate  Validate the registry file
  generate  Rewrite the registry from the compiled worker catalog
  check     Report drift between the registry and the worker catalog
  help      Show this help message

Examples:
  registry-updater generate
  registry-updater check -path configs/activity-registry.json
  registry-updater update -id issue-completion-link -field timeout -value 45s

Use 'registry-updater <command> -h' for more information about a command.

`)
}
