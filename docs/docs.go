// Package docs holds the gateway's OpenAPI document, served on /swagger/*.
//
// It is maintained by hand in swag's output format and mirrors the swag annotations in
// cmd/api and internal/http/handler. Running `swag init -g cmd/api/main.go` regenerates
// it from those annotations.
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
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Open a session",
                "parameters": [
                    {
                        "description": "credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/wire.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/wire.Me"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Close the current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/wire.Status"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Dependency health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/me": {
            "get": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user and WebSocket token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/wire.Me"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/modifyDB": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["proxy"],
                "summary": "Write to a configured database connection",
                "parameters": [
                    {
                        "description": "modification",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/wire.DBModifyRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/wire.ModifyResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/publish": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["proxy"],
                "summary": "Publish a message on a broker topic",
                "parameters": [
                    {
                        "description": "message",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/wire.PublishRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/wire.Status"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/wire.Status"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/wire.Status"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/wire.Status"}}
                }
            }
        },
        "/queryDB": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["proxy"],
                "summary": "Read from a configured database connection",
                "parameters": [
                    {
                        "description": "query",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/wire.DBQueryRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "object", "additionalProperties": true}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/restcall": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["proxy"],
                "summary": "Proxy a REST call",
                "parameters": [
                    {
                        "description": "target and payload",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/wire.RestCallRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        }
    },
    "definitions": {
        "handler.errorEnvelope": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handler.errorPayload": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/handler.errorEnvelope"},
                "request_id": {"type": "string"}
            }
        },
        "wire.DBModifyRequest": {
            "type": "object",
            "properties": {
                "collection": {"type": "string"},
                "connection_name": {"type": "string"},
                "database": {"type": "string"},
                "dbType": {"type": "string"},
                "filter": {"type": "object", "additionalProperties": true},
                "modification": {"type": "string"},
                "new_data": {"type": "object", "additionalProperties": true},
                "params": {"type": "array", "items": {}},
                "query": {"type": "string"}
            }
        },
        "wire.DBQueryRequest": {
            "type": "object",
            "properties": {
                "collection": {"type": "string"},
                "connection_name": {"type": "string"},
                "database": {"type": "string"},
                "filter": {"type": "object", "additionalProperties": true},
                "params": {"type": "array", "items": {}},
                "query": {"type": "string"}
            }
        },
        "wire.LoginRequest": {
            "type": "object",
            "properties": {
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "wire.Me": {
            "type": "object",
            "properties": {
                "roles": {"type": "array", "items": {"type": "string"}},
                "username": {"type": "string"},
                "ws_token": {"type": "string"}
            }
        },
        "wire.ModifyResult": {
            "type": "object",
            "properties": {
                "affected": {"type": "integer"},
                "inserted_id": {},
                "status": {"type": "string"}
            }
        },
        "wire.PublishRequest": {
            "type": "object",
            "properties": {
                "broker": {"type": "string"},
                "message": {"type": "object", "additionalProperties": true},
                "topic": {"type": "string"}
            }
        },
        "wire.RestCallRequest": {
            "type": "object",
            "properties": {
                "base_url": {"type": "string"},
                "body": {},
                "headers": {"type": "object", "additionalProperties": {"type": "string"}},
                "host": {"type": "string"},
                "method": {"type": "string"},
                "name": {"type": "string"},
                "params": {"type": "object", "additionalProperties": true},
                "path": {"type": "string"},
                "port": {"type": "integer"}
            }
        },
        "wire.Status": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "status": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "WebDSL Runtime Gateway",
	Description:      "Proxy, database and broker endpoints called by generated WebDSL applications.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
