package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Save writes reg as indented JSON, creating the directory if needed.
func Save(reg *ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *ActivityRegistry) Find(id string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

func (r *ActivityRegistry) Add(a Activity, now time.Time) error {
	if _, ok := r.Find(a.ID); ok {
		return fmt.Errorf("activity with ID %s already exists", a.ID)
	}
	r.Activities = append(r.Activities, a)
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

// Update sets a single scalar field of the activity with the given id.
func (r *ActivityRegistry) Update(id, field, value string, now time.Time) error {
	a, ok := r.Find(id)
	if !ok {
		return fmt.Errorf("activity with ID %s not found", id)
	}
	switch field {
	case "status":
		if !validStatuses[value] {
			return fmt.Errorf("invalid status: %s", value)
		}
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

// Validate checks required fields and uniqueness of ids and task types.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]string)
	for _, a := range r.Activities {
		if a.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate activity ID: %s", a.ID)
		}
		ids[a.ID] = true

		switch {
		case a.DisplayName == "":
			return fmt.Errorf("activity %s missing required field: DisplayName", a.ID)
		case a.TaskType == "":
			return fmt.Errorf("activity %s missing required field: TaskType", a.ID)
		case a.Category == "":
			return fmt.Errorf("activity %s missing required field: Category", a.ID)
		case !validStatuses[a.ImplementationStatus]:
			return fmt.Errorf("activity %s has invalid status %q", a.ID, a.ImplementationStatus)
		}
		if other, ok := taskTypes[a.TaskType]; ok {
			return fmt.Errorf("activities %s and %s share task type %s", other, a.ID, a.TaskType)
		}
		taskTypes[a.TaskType] = a.ID
	}
	return nil
}

// Drift lists task types that differ between the registry and the built-in
// catalog: missing from the file, unknown to the code, or with a changed
// input schema.
func (r *ActivityRegistry) Drift(catalog []Activity) []string {
	have := make(map[string]Activity, len(r.Activities))
	for _, a := range r.Activities {
		have[a.TaskType] = a
	}

	var out []string
	seen := make(map[string]bool, len(catalog))
	for _, want := range catalog {
		seen[want.TaskType] = true
		got, ok := have[want.TaskType]
		if !ok {
			out = append(out, want.TaskType+": missing from registry")
			continue
		}
		if !sameJSON(got.InputSchema, want.InputSchema) {
			out = append(out, want.TaskType+": input schema differs")
		}
	}
	for tt := range have {
		if !seen[tt] {
			out = append(out, tt+": no worker implements it")
		}
	}
	sort.Strings(out)
	return out
}

func sameJSON(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
