package server

import (
	"github.com/morezero/plugin-registry/pkg/registry"
)

// openAPI3 types for generating a document from the registry contents.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags,omitempty"`
	Parameters  []openAPI3Parameter         `json:"parameters,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3Parameter struct {
	Name        string                 `json:"name"`
	In          string                 `json:"in"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// errorEnvelopeSchema describes a failed invocation response.
var errorEnvelopeSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id": map[string]interface{}{"type": "string"},
		"ok": map[string]interface{}{"type": "boolean"},
		"error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"code":      map[string]interface{}{"type": "string"},
				"message":   map[string]interface{}{"type": "string"},
				"details":   map[string]interface{}{"type": "object"},
				"retryable": map[string]interface{}{"type": "boolean"},
			},
		},
	},
}

// buildOpenAPISpec builds an OpenAPI 3.0 document with one POST path per registered operation.
func buildOpenAPISpec(reg *registry.Registry, title, version string) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem, reg.Len())
	for d := range reg.List() {
		name := d.FullName()
		result := map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":     map[string]interface{}{"type": "string"},
				"ok":     map[string]interface{}{"type": "boolean"},
				"result": d.Returns.JSONSchema(),
			},
		}
		errorResponse := func(desc string) openAPI3Response {
			return openAPI3Response{
				Description: desc,
				Content:     map[string]openAPI3MediaType{"application/json": {Schema: errorEnvelopeSchema}},
			}
		}
		paths["/operations/"+name] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     name,
				Description: d.Description,
				OperationID: name,
				Tags:        []string{d.Group},
				Parameters: []openAPI3Parameter{{
					Name:        "timeout",
					In:          "query",
					Description: "Invocation timeout as a Go duration (e.g. 500ms, 5s)",
					Schema:      map[string]interface{}{"type": "string"},
				}},
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: registry.InputSchema(d)},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Success",
						Content:     map[string]openAPI3MediaType{"application/json": {Schema: result}},
					},
					"400": errorResponse("Missing argument, type mismatch or invalid request"),
					"404": errorResponse("Operation not found"),
					"500": errorResponse("Implementation error"),
					"504": errorResponse("Timeout"),
				},
			},
		}
	}

	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       title,
			Description: "Typed plugin operations exposed by plugind",
			Version:     version,
		},
		Paths: paths,
	}
}
