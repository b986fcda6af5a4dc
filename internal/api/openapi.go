// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"encoding/json"
	"net"
	"reflect"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"

	"github.com/holomush/userauth/internal/auth"
)

// OpenAPIVersion is the OpenAPI release the document conforms to.
const OpenAPIVersion = "3.1.0"

// LoginForm documents the login request body.
type LoginForm struct {
	Email string `json:"email,omitempty" jsonschema:"format=email"`
	// Username is accepted in place of Email for OAuth2 password-flow clients.
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// schemaTypes lists the component schemas published in the document.
func schemaTypes() map[string]any {
	return map[string]any{
		"Registration":   &auth.Registration{},
		"Identity":       &auth.Identity{},
		"Token":          &auth.Token{},
		"LoginForm":      &LoginForm{},
		"RegisterResult": &Envelope[*auth.Identity]{},
		"LoginResult":    &Envelope[*auth.Token]{},
		"ErrorResponse":  &ErrorResponse{},
	}
}

// ComponentSchemas reflects the request and response types into JSON
// Schemas keyed by component name.
func ComponentSchemas() map[string]*jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(uuid.UUID{}) {
				return &jsonschema.Schema{Type: "string", Format: "uuid"}
			}
			return nil
		},
	}

	out := make(map[string]*jsonschema.Schema)
	for name, v := range schemaTypes() {
		schema := r.Reflect(v)
		// Components inherit the document's dialect.
		schema.Version = ""
		schema.Title = name
		out[name] = schema
	}
	return out
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func jsonContent(name string) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": ref(name)}}
}

func response(description, schema string) map[string]any {
	return map[string]any{"description": description, "content": jsonContent(schema)}
}

// buildOpenAPI renders the OpenAPI document for the configured routes.
func (a *API) buildOpenAPI() ([]byte, error) {
	users := a.prefix + "/users"
	bearer := []map[string][]string{{"bearer": {}}}

	doc := map[string]any{
		"openapi": OpenAPIVersion,
		"info": map[string]any{
			"title":       "userauth",
			"version":     a.versionOrDev(),
			"description": "User registration, password login and bearer token confirmation.",
		},
		"paths": map[string]any{
			users + "/new": map[string]any{
				"post": map[string]any{
					"operationId": "registerUser",
					"tags":        []string{"authentication"},
					"requestBody": map[string]any{"required": true, "content": jsonContent("Registration")},
					"responses": map[string]any{
						"201": response("User created", "RegisterResult"),
						"400": response("Email already registered, malformed body, or field validation failed", "ErrorResponse"),
					},
				},
			},
			users + "/login": map[string]any{
				"post": map[string]any{
					"operationId": "loginUser",
					"tags":        []string{"authentication"},
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/x-www-form-urlencoded": map[string]any{"schema": ref("LoginForm")},
						},
					},
					"responses": map[string]any{
						"200": response("Access token issued", "LoginResult"),
						"400": response("Invalid email or password", "ErrorResponse"),
					},
				},
			},
			users + "/confirm_token": map[string]any{
				"post": map[string]any{
					"operationId": "confirmToken",
					"tags":        []string{"authentication"},
					"security":    bearer,
					"responses": map[string]any{
						"200": response("Token owner", "Identity"),
						"401": response("Missing, invalid or expired token", "ErrorResponse"),
						"404": response("Token subject no longer exists", "ErrorResponse"),
					},
				},
			},
		},
		"components": map[string]any{
			"schemas": ComponentSchemas(),
			"securitySchemes": map[string]any{
				"bearer": map[string]any{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
	}
	if a.domain != "" {
		doc["servers"] = []map[string]any{{"url": serverURL(a.domain)}}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, oops.Code("API_OPENAPI_RENDER_FAILED").Wrap(err)
	}
	return data, nil
}

// serverURL assumes TLS termination everywhere except on localhost.
func serverURL(domain string) string {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "http://" + domain
	}
	return "https://" + domain
}

func (a *API) versionOrDev() string {
	if a.version == "" {
		return "dev"
	}
	return a.version
}
