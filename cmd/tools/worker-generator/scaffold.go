package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"text/template"
	"time"

	"adr-workers/internal/common/validation"
	"adr-workers/pkg/registry"
)

type field struct {
	Name    string
	Type    string
	Tag     string
	Comment string
}

type schemaProp struct {
	Name string
	Expr string
}

// WorkerData holds data for templates
type WorkerData struct {
	Activity    registry.Activity
	PackageName string
	Timeout     string
	Inputs      []field
	Outputs     []field
	Required    []string
	Schema      []schemaProp
}

var initialisms = map[string]string{"id": "ID", "url": "URL", "sms": "SMS"}

// goName turns a camelCase variable into an exported identifier.
func goName(s string) string {
	var parts []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || (s[i] >= 'A' && s[i] <= 'Z') {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	var b strings.Builder
	for _, p := range parts {
		if up, ok := initialisms[strings.ToLower(p)]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

func packageName(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

func goType(p validation.Property) string {
	switch p.Type {
	case "string":
		return "string"
	case "integer":
		return "int64"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "array":
		if p.Items != nil && p.Items.Type == "string" {
			return "[]string"
		}
		return "[]interface{}"
	case "object":
		return "map[string]interface{}"
	default:
		return "interface{}"
	}
}

// durationLiteral renders d as Go source.
func durationLiteral(d time.Duration) string {
	switch {
	case d%time.Minute == 0:
		return fmt.Sprintf("%d * time.Minute", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%d * time.Second", d/time.Second)
	default:
		return fmt.Sprintf("%d * time.Millisecond", d/time.Millisecond)
	}
}

func propertyExpr(p validation.Property) string {
	parts := []string{fmt.Sprintf("Type: %q", p.Type)}
	if p.Pattern != "" {
		parts = append(parts, fmt.Sprintf("Pattern: %q", p.Pattern))
	}
	if len(p.Enum) > 0 {
		quoted := make([]string, len(p.Enum))
		for i, e := range p.Enum {
			quoted[i] = fmt.Sprintf("%q", e)
		}
		parts = append(parts, fmt.Sprintf("Enum: []string{%s}", strings.Join(quoted, ", ")))
	}
	if p.MinLength != nil {
		parts = append(parts, fmt.Sprintf("MinLength: validation.IntPtr(%d)", *p.MinLength))
	}
	if p.Minimum != nil {
		parts = append(parts, fmt.Sprintf("Minimum: validation.FloatPtr(%g)", *p.Minimum))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func newWorkerData(a registry.Activity) (*WorkerData, error) {
	timeout, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return nil, fmt.Errorf("activity %s: timeout %q: %w", a.ID, a.Timeout, err)
	}

	raw, err := json.Marshal(a.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("activity %s: input schema: %w", a.ID, err)
	}
	var schema validation.JSONSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("activity %s: input schema: %w", a.ID, err)
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	data := &WorkerData{
		Activity:    a,
		PackageName: packageName(a.ID),
		Timeout:     durationLiteral(timeout),
		Required:    schema.Required,
	}
	for _, name := range names {
		p := schema.Properties[name]
		tag := name
		if !required[name] {
			tag += ",omitempty"
		}
		data.Inputs = append(data.Inputs, field{
			Name:    goName(name),
			Type:    goType(p),
			Tag:     fmt.Sprintf("`json:%q`", tag),
			Comment: p.Description,
		})
		data.Schema = append(data.Schema, schemaProp{Name: name, Expr: propertyExpr(p)})
	}
	for _, name := range a.OutputVariables {
		data.Outputs = append(data.Outputs, field{
			Name: goName(name),
			Type: "interface{}",
			Tag:  fmt.Sprintf("`json:%q`", name),
		})
	}
	return data, nil
}

// Scaffold renders the worker package files for a, gofmt'ed.
func Scaffold(a registry.Activity) (map[string][]byte, error) {
	data, err := newWorkerData(a)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(fileTemplates))
	for name, tmpl := range fileTemplates {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", name, err)
		}
		files[name] = src
	}
	return files, nil
}

var fileTemplates = map[string]*template.Template{
	"config.go":       template.Must(template.New("config.go").Parse(configTemplate)),
	"models.go":       template.Must(template.New("models.go").Parse(modelsTemplate)),
	"handler.go":      template.Must(template.New("handler.go").Parse(handlerTemplate)),
	"handler_test.go": template.Must(template.New("handler_test.go").Parse(testTemplate)),
}

const configTemplate = `package {{ .PackageName }}

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: {{ .Timeout }},
	}
}
`

const modelsTemplate = `package {{ .PackageName }}

import "adr-workers/internal/common/validation"

type Input struct {
{{- range .Inputs }}
	{{ .Name }} {{ .Type }} {{ .Tag }}{{ if .Comment }} // {{ .Comment }}{{ end }}
{{- end }}
}

type Output struct {
{{- range .Outputs }}
	{{ .Name }} {{ .Type }} {{ .Tag }}
{{- end }}
}

var InputSchema = validation.JSONSchema{
	Type: "object",
{{- if .Required }}
	Required: []string{ {{- range $i, $r := .Required }}{{ if $i }}, {{ end }}{{ printf "%q" $r }}{{ end -}} },
{{- end }}
	Properties: map[string]validation.Property{
{{- range .Schema }}
		{{ printf "%q" .Name }}: {{ .Expr }},
{{- end }}
	},
	AdditionalProperties: true,
}
`

const handlerTemplate = `package {{ .PackageName }}

import (
	"context"

	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = {{ printf "%q" .Activity.TaskType }}

// Service does the work behind {{ .Activity.DisplayName }}.
type Service interface {
	Run(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config       *Config
	service      Service
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, service Service, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      service,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := validation.DecodeVariables(job.Variables, InputSchema, &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.service.Run(ctx, input)
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"testing"

	"github.com/stretchr/testify/assert"
{{- if .Required }}
	"github.com/stretchr/testify/require"

	"adr-workers/internal/common/errors"
{{- end }}
	"adr-workers/internal/common/validation"
)

func TestInputSchema_Empty(t *testing.T) {
	var input Input
	err := validation.DecodeVariables("{}", InputSchema, &input)
{{- if .Required }}
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidationFailed))
{{- else }}
	assert.NoError(t, err)
{{- end }}
}
`
