// Package openapi provides reflective OpenAPI 3.0 document generation.
// Request and response schemas are extracted from the API's own Go types,
// so the document can never drift from what the handlers actually encode.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered endpoints.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	errorModel  any
	endpoints   []Endpoint
	mu          sync.RWMutex
	cached      *openapi3.T
}

// Endpoint describes one routable operation for document generation.
// Request and Response are model structs; their schemas are extracted by
// reflection and registered under the struct's type name.
type Endpoint struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Tag         string
	Request     any     // request body model, nil when the operation takes none
	Response    any     // success response model, nil for non-JSON responses
	Status      int     // success status code, defaults to 200
	ContentType string  // success content type when Response is nil
	Query       []Param // query parameters
}

// Param describes a query parameter.
type Param struct {
	Name        string
	Integer     bool
	Description string
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) { g.title = title }
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) { g.version = version }
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) { g.description = description }
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) { g.servers = append(g.servers, url) }
}

// WithErrorModel sets the model used for the default error response.
func WithErrorModel(model any) Option {
	return func(g *Generator) { g.errorModel = model }
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Drydock API",
		version:     "1.0.0",
		description: "Profile dependency resolution and staged installation API",
		servers:     []string{"/"},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds an endpoint to the generator.
func (g *Generator) Register(ep Endpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endpoints = append(g.endpoints, ep)
	g.cached = nil
}

// Generate produces the complete OpenAPI 3.0 document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cached != nil {
		spec := g.cached
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached != nil {
		return g.cached
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}
	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	errorRef := ""
	if g.errorModel != nil {
		errorRef = "#/components/schemas/" + g.ensureSchema(spec, g.errorModel)
	}
	for _, ep := range g.endpoints {
		g.addEndpoint(spec, ep, errorRef)
	}

	g.cached = spec
	return spec
}

// Handler returns an HTTP handler that serves the generated document.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(g.Generate()); err != nil {
			http.Error(w, "failed to encode OpenAPI document", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Path Assembly
// =============================================================================

var pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

func (g *Generator) addEndpoint(spec *openapi3.T, ep Endpoint, errorRef string) {
	op := &openapi3.Operation{
		OperationID: ep.OperationID,
		Summary:     ep.Summary,
		Responses:   &openapi3.Responses{},
	}
	if ep.Tag != "" {
		op.Tags = []string{ep.Tag}
	}

	if ep.Request != nil {
		ref := "#/components/schemas/" + g.ensureSchema(spec, ep.Request)
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content: openapi3.Content{
					"application/json": &openapi3.MediaType{
						Schema: &openapi3.SchemaRef{Ref: ref},
					},
				},
			},
		}
	}

	for _, q := range ep.Query {
		schema := &openapi3.Schema{Type: &openapi3.Types{"string"}}
		if q.Integer {
			schema = &openapi3.Schema{Type: &openapi3.Types{"integer"}}
		}
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:        q.Name,
				In:          "query",
				Description: q.Description,
				Schema:      &openapi3.SchemaRef{Value: schema},
			},
		})
	}

	status := ep.Status
	if status == 0 {
		status = http.StatusOK
	}
	switch {
	case ep.Response != nil:
		ref := "#/components/schemas/" + g.ensureSchema(spec, ep.Response)
		op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(status)).
				WithJSONSchemaRef(&openapi3.SchemaRef{Ref: ref}),
		})
	case ep.ContentType != "":
		op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(status)).
				WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{ep.ContentType})),
		})
	}
	if errorRef != "" {
		op.Responses.Set("default", &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Error").
				WithJSONSchemaRef(&openapi3.SchemaRef{Ref: errorRef}),
		})
	}

	item := spec.Paths.Value(ep.Path)
	if item == nil {
		item = &openapi3.PathItem{Parameters: pathParameters(ep.Path)}
		spec.Paths.Set(ep.Path, item)
	}
	switch strings.ToUpper(ep.Method) {
	case http.MethodGet:
		item.Get = op
	case http.MethodPost:
		item.Post = op
	case http.MethodPut:
		item.Put = op
	case http.MethodPatch:
		item.Patch = op
	case http.MethodDelete:
		item.Delete = op
	}
}

// pathParameters declares every {segment} of the path as a required
// string parameter.
func pathParameters(path string) openapi3.Parameters {
	matches := pathParamPattern.FindAllStringSubmatch(path, -1)
	if len(matches) == 0 {
		return nil
	}
	params := make(openapi3.Parameters, 0, len(matches))
	for _, m := range matches {
		params = append(params, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:     m[1],
				In:       "path",
				Required: true,
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
			},
		})
	}
	return params
}

// =============================================================================
// Schema Extraction
// =============================================================================

// ensureSchema registers the model's schema under its Go type name and
// returns that name. Already-registered models are not re-extracted.
func (g *Generator) ensureSchema(spec *openapi3.T, model any) string {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if _, ok := spec.Components.Schemas[name]; !ok {
		spec.Components.Schemas[name] = g.extractSchema(model)
	}
	return name
}

// extractSchema builds an object schema from a Go struct, following the
// json tags the encoder will use. Nested structs are inlined.
func (g *Generator) extractSchema(model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := field.Name
		if jsonTag != "" {
			if parts := strings.Split(jsonTag, ","); parts[0] != "" {
				name = parts[0]
			}
		}

		if prop := g.goTypeToSchema(field.Type); prop != nil {
			schema.Properties[name] = prop
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(reflect.New(t).Interface())

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}
