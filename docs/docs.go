// Package docs holds the generated OpenAPI description for the ingress
// HTTP surface, registered with swaggo/swag and served at /swagger.
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "FlowCatalyst Support",
            "url": "https://flowcatalyst.tech/support"
        },
        "license": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ingress/batch": {
            "post": {
                "description": "Accepts a batch of events or dispatch jobs sharing one message group, answering with a per-item result.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Ingress"],
                "summary": "Ingest a batch of events or dispatch jobs",
                "parameters": [
                    {
                        "description": "Batch of items to ingest",
                        "name": "batch",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ingress.batchRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ingress.batchResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request body",
                        "schema": {
                            "type": "string"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "ingress.itemRequest": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "payload": {
                    "type": "object"
                },
                "type": {
                    "type": "string"
                }
            }
        },
        "ingress.batchRequest": {
            "type": "object",
            "properties": {
                "group": {
                    "type": "string"
                },
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ingress.itemRequest"
                    }
                }
            }
        },
        "ingress.itemResult": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "result": {
                    "type": "string"
                },
                "retry_after_seconds": {
                    "type": "integer"
                }
            }
        },
        "ingress.batchResponse": {
            "type": "object",
            "properties": {
                "results": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ingress.itemResult"
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds the exported Swagger spec for the ingress API.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "FlowCatalyst Ingress API",
	Description:      "Event and dispatch job ingestion endpoint for the outbox processor's API client.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
