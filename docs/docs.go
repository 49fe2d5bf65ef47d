// Package docs registers the swagger document of the trip tracking API.
package docs

import "github.com/swaggo/swag"

const InstanceName = "tripsync"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "API Support"},
        "license": {"name": "Apache 2.0", "url": "http://www.apache.org/licenses/LICENSE-2.0.html"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {"tags": ["Health"], "summary": "Health Check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Degraded"}}}
        },
        "/trips": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "List trips",
                "parameters": [
                    {"type": "string", "name": "status", "in": "query", "description": "comma separated statuses"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"},
                    {"type": "string", "name": "sort", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "Create a trip",
                "consumes": ["application/json"],
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.CreateTripRequest"}}],
                "responses": {"201": {"description": "Created"}, "401": {"description": "Unauthorized"}, "403": {"description": "Forbidden"}, "422": {"description": "Validation error"}}}
        },
        "/trips/{trip_id}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "Get a trip",
                "parameters": [{"type": "string", "name": "trip_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not found"}}}
        },
        "/trips/{trip_id}/events": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "Trip event history",
                "parameters": [{"type": "string", "name": "trip_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/trips/{trip_id}/position": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "Last known fulfiller position of a trip",
                "parameters": [{"type": "string", "name": "trip_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Position unavailable"}}}
        },
        "/trips/{trip_id}/status": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "Move the trip forward",
                "parameters": [
                    {"type": "string", "name": "trip_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.AdvanceStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Transition rejected"}}}
        },
        "/trips/{trip_id}/cancel": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Trips"], "summary": "Cancel a trip",
                "parameters": [
                    {"type": "string", "name": "trip_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "schema": {"$ref": "#/definitions/dto.ReasonRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Transition rejected"}}}
        },
        "/trips/{trip_id}/accept": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Offers"], "summary": "Accept an offer",
                "parameters": [{"type": "string", "name": "trip_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Offer already taken"}}}
        },
        "/trips/{trip_id}/reject": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Offers"], "summary": "Reject an offer",
                "parameters": [
                    {"type": "string", "name": "trip_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "schema": {"$ref": "#/definitions/dto.ReasonRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}}
        },
        "/fulfillers/online": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Fulfillers"], "summary": "Fulfiller goes online",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.GoOnlineRequest"}}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/fulfillers/offline": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Fulfillers"], "summary": "Fulfiller goes offline",
                "responses": {"200": {"description": "OK"}}}
        },
        "/fulfillers/location": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Fulfillers"], "summary": "Report fulfiller position",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.LocationUpdateRequest"}}],
                "responses": {"202": {"description": "Accepted"}}}
        },
        "/ws": {
            "get": {"tags": ["Tracking"], "summary": "Live tracking channel",
                "parameters": [{"type": "string", "name": "token", "in": "query"}],
                "responses": {"101": {"description": "Switching Protocols"}, "401": {"description": "Unauthorized"}}}
        }
    },
    "definitions": {
        "dto.Place": {"type": "object", "properties": {
            "address": {"type": "string"}, "latitude": {"type": "number"}, "longitude": {"type": "number"},
            "contact_name": {"type": "string"}, "contact_phone": {"type": "string"}}},
        "dto.CreateTripRequest": {"type": "object", "properties": {
            "service_type": {"type": "string", "enum": ["ride", "delivery"]},
            "pickup": {"$ref": "#/definitions/dto.Place"}, "dropoff": {"$ref": "#/definitions/dto.Place"},
            "requester_id": {"type": "string"}, "require_pin": {"type": "boolean"}}},
        "dto.AdvanceStatusRequest": {"type": "object", "properties": {
            "status": {"type": "string", "enum": ["arrived", "in_progress", "completed"]}}},
        "dto.ReasonRequest": {"type": "object", "properties": {"reason": {"type": "string"}}},
        "dto.GoOnlineRequest": {"type": "object", "properties": {
            "service_type": {"type": "string"}, "latitude": {"type": "number"}, "longitude": {"type": "number"}, "heading": {"type": "number"}}},
        "dto.LocationUpdateRequest": {"type": "object", "properties": {
            "trip_id": {"type": "string"}, "latitude": {"type": "number"}, "longitude": {"type": "number"},
            "heading": {"type": "number"}, "timestamp": {"type": "string"}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Type \"Bearer\" followed by a space and JWT token.", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Trip Tracking API",
	Description:      "Coordinating server of the trip lifecycle: trip CRUD, offers to nearby fulfillers, fulfiller availability and the live tracking websocket channel.",
	InfoInstanceName: InstanceName,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
