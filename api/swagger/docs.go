// Package swagger serves the OpenAPI document for the PRS API.
// Regenerate with: swag init -g cmd/api/main.go -o api/swagger
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Login user",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.LoginUserRequest"}}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/requests": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "List requests",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Create a purchase request",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.CreateRequestDTO"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/requests/review": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Requests waiting for review",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/requests/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Get a request with its line items",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Update the descriptive fields of a request",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.UpdateRequestDTO"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Delete a request and its line items",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/requests/{id}/submit-review": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Submit a request",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/requests/{id}/approve": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Approve a request in review",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/requests/{id}/reject": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["requests"],
                "summary": "Reject a request in review",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.RejectRequestDTO"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/line-items": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["line-items"],
                "summary": "Add a line item",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.CreateLineItemDTO"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        }
    },
    "definitions": {
        "service.LoginUserRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}
        },
        "service.CreateRequestDTO": {
            "type": "object",
            "required": ["description", "justification", "date_needed", "delivery_mode"],
            "properties": {
                "description": {"type": "string"},
                "justification": {"type": "string"},
                "date_needed": {"type": "string", "format": "date-time"},
                "delivery_mode": {"type": "string"}
            }
        },
        "service.UpdateRequestDTO": {
            "type": "object",
            "required": ["id", "description", "justification", "date_needed", "delivery_mode", "version"],
            "properties": {
                "id": {"type": "integer"},
                "description": {"type": "string"},
                "justification": {"type": "string"},
                "date_needed": {"type": "string", "format": "date-time"},
                "delivery_mode": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "service.RejectRequestDTO": {
            "type": "object",
            "properties": {"reason": {"type": "string"}}
        },
        "service.CreateLineItemDTO": {
            "type": "object",
            "properties": {
                "request_id": {"type": "integer"},
                "product_id": {"type": "integer"},
                "quantity": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Purchase Request System API",
	Description:      "Purchase requests, line items and their review workflow.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
