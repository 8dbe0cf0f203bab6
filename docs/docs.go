// Package docs registers the OpenAPI description served under /swagger.
package docs

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
        "/events/{id}": {
            "get": {
                "summary": "Get event",
                "parameters": [
                    {"type": "integer", "description": "Event ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Event"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/events/{id}/availability": {
            "get": {
                "summary": "Get availability counters",
                "parameters": [
                    {"type": "integer", "description": "Event ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.EventCounts"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/events/{id}/reservations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "List reservations of an event",
                "parameters": [
                    {"type": "integer", "description": "Event ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ReservationView"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Request seats (idempotent)",
                "parameters": [
                    {"type": "integer", "description": "Event ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "replays the first response", "name": "Idempotency-Key", "in": "header"},
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CreateReservationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.ReservationView"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "not enough seats / idem in progress", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/movies/{id}/reservations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "List reservations of every showing of a movie",
                "parameters": [
                    {"type": "integer", "description": "Movie ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ReservationView"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/reservations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "Get reservation",
                "parameters": [
                    {"type": "string", "description": "Reservation ID (uuid)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ReservationView"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/reservations/{id}/confirm": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Confirm an open hold",
                "parameters": [
                    {"type": "string", "description": "Reservation ID (uuid)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ReservationView"}},
                    "400": {"description": "not yet open / already confirmed", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "410": {"description": "hold expired", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/admin/movies": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Create movie",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CreateMovieRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreateMovieResponse"}}
                }
            }
        },
        "/admin/events": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Create event",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CreateEventRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreateEventResponse"}},
                    "404": {"description": "movie not found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/admin/users": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Create user",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreateUserResponse"}},
                    "409": {"description": "email taken", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Event": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "movie_id": {"type": "integer"},
                "movie_title": {"type": "string"},
                "capacity": {"type": "integer"},
                "starts_at": {"type": "string"}
            }
        },
        "domain.EventCounts": {
            "type": "object",
            "properties": {
                "event_id": {"type": "integer"},
                "capacity": {"type": "integer"},
                "used": {"type": "integer"},
                "remaining": {"type": "integer"},
                "pending": {"type": "integer"},
                "open": {"type": "integer"},
                "confirmed": {"type": "integer"},
                "expired": {"type": "integer"}
            }
        },
        "domain.ReservationView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "event_id": {"type": "integer"},
                "user_id": {"type": "integer"},
                "seats": {"type": "integer"},
                "status": {"type": "string", "enum": ["PENDING", "OPEN", "CONFIRMED", "EXPIRED"]},
                "rank": {"type": "integer"},
                "expires_at": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "httpgin.CreateReservationRequest": {
            "type": "object",
            "required": ["seats"],
            "properties": {"seats": {"type": "integer"}}
        },
        "httpgin.CreateMovieRequest": {
            "type": "object",
            "required": ["title"],
            "properties": {"title": {"type": "string"}}
        },
        "httpgin.CreateMovieResponse": {
            "type": "object",
            "properties": {"movie_id": {"type": "integer"}}
        },
        "httpgin.CreateEventRequest": {
            "type": "object",
            "required": ["capacity", "movie_id", "starts_at"],
            "properties": {
                "movie_id": {"type": "integer"},
                "capacity": {"type": "integer"},
                "starts_at": {"type": "string"}
            }
        },
        "httpgin.CreateEventResponse": {
            "type": "object",
            "properties": {"event_id": {"type": "integer"}}
        },
        "httpgin.CreateUserRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {
                "email": {"type": "string"},
                "role": {"type": "string", "enum": ["CUSTOMER", "ADMIN"]}
            }
        },
        "httpgin.CreateUserResponse": {
            "type": "object",
            "properties": {"user_id": {"type": "integer"}}
        },
        "httpgin.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
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
	Title:            "TixQueue API",
	Description:      "Showing reservations with a first-come waitlist and expiring holds.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
