// Package docs registers the swagger document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/readyz": {"get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}},
        "/api/sync-status": {"get": {"tags": ["pipeline"], "summary": "Last completed date of each pipeline stage", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/progress": {"get": {"tags": ["pipeline"], "summary": "Progress of the current or last batch run", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/sync-prices": {"post": {"tags": ["pipeline"], "summary": "Start a price sync",
            "parameters": [{"type": "boolean", "description": "refetch the full history window", "name": "force_full", "in": "query"}],
            "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.apiResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/calculate-metrics": {"post": {"tags": ["pipeline"], "summary": "Start a metric calculation",
            "parameters": [{"type": "string", "description": "as-of date (YYYY-MM-DD)", "name": "date", "in": "query"}],
            "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.apiResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/execute-screener": {"post": {"tags": ["pipeline"], "summary": "Start a screening run",
            "parameters": [{"type": "string", "description": "screening date (YYYY-MM-DD)", "name": "date", "in": "query"}],
            "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.apiResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/run-pipeline": {"post": {"tags": ["pipeline"], "summary": "Start sync, metrics and screening in sequence",
            "parameters": [
                {"type": "boolean", "description": "refetch the full history window", "name": "force_full", "in": "query"},
                {"type": "string", "description": "as-of date (YYYY-MM-DD)", "name": "date", "in": "query"}
            ],
            "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.apiResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/results": {"get": {"tags": ["results"], "summary": "Screening results",
            "parameters": [{"type": "string", "description": "screening date (YYYY-MM-DD); latest run when empty", "name": "date", "in": "query"}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}},
        "/api/config": {
            "get": {"tags": ["config"], "summary": "Effective screening thresholds", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}},
            "post": {"tags": ["config"], "summary": "Store screening threshold overrides",
                "parameters": [{"description": "overrides keyed by threshold name", "name": "body", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}
        },
        "/api/coverage": {"get": {"tags": ["pipeline"], "summary": "Price history coverage per ticker",
            "parameters": [{"type": "string", "description": "single ticker", "name": "symbol", "in": "query"}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}}
    },
    "definitions": {
        "handler.apiResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "meta": {"type": "object", "additionalProperties": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Put Screener API",
	Description:      "Price sync, metric calculation and cash-secured put screening.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
