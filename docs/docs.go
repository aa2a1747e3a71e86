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
        "/payments/vnpay/return": {
            "get": {
                "description": "Verifies the signed VNPay redirect and confirms the donation",
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "VNPay return URL",
                "parameters": [
                    {"type": "string", "description": "Donation transaction code", "name": "vnp_TxnRef", "in": "query", "required": true},
                    {"type": "string", "description": "HMAC signature", "name": "vnp_SecureHash", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ConfirmationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/vnpay/ipn": {
            "get": {
                "description": "Verifies the VNPay IPN, confirms the donation and acknowledges with an RspCode",
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "VNPay IPN",
                "parameters": [
                    {"type": "string", "description": "Donation transaction code", "name": "vnp_TxnRef", "in": "query", "required": true},
                    {"type": "string", "description": "HMAC signature", "name": "vnp_SecureHash", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.VNPayIPNResponse"}}
                }
            }
        },
        "/payments/momo/return": {
            "get": {
                "description": "Verifies the signed MoMo redirect and confirms the donation",
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "MoMo return URL",
                "parameters": [
                    {"type": "string", "description": "Donation transaction code", "name": "orderId", "in": "query", "required": true},
                    {"type": "string", "description": "HMAC signature", "name": "signature", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ConfirmationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/momo/ipn": {
            "post": {
                "description": "Verifies the MoMo IPN body and confirms the donation",
                "consumes": ["application/json"],
                "tags": ["Payments"],
                "summary": "MoMo IPN",
                "parameters": [
                    {"description": "MoMo IPN payload", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/confirm": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Operator confirmation for payments that have no gateway callback",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Manual confirmation",
                "parameters": [
                    {"description": "Confirmation request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ManualConfirmRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ConfirmationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/campaigns/{id}/ledger": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Ledger"],
                "summary": "Campaign ledger",
                "parameters": [
                    {"type": "integer", "description": "Campaign ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/campaigns/{id}/reconcile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Ledger"],
                "summary": "Reconcile campaign",
                "parameters": [
                    {"type": "integer", "description": "Campaign ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ReconciliationReport"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/ledger/pools/{pool}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Ledger"],
                "summary": "Fund pool balance",
                "parameters": [
                    {"type": "string", "description": "reserve_fund or general_fund", "name": "pool", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ConfirmationResponse": {
            "type": "object",
            "properties": {
                "result": {"type": "string"},
                "success": {"type": "boolean"},
                "transactionCode": {"type": "string"}
            }
        },
        "handlers.ManualConfirmRequest": {
            "type": "object",
            "required": ["outcome", "transactionCode"],
            "properties": {
                "outcome": {"type": "string", "enum": ["success", "failed"]},
                "reason": {"type": "string", "maxLength": 255},
                "transactionCode": {"type": "string", "maxLength": 64}
            }
        },
        "handlers.VNPayIPNResponse": {
            "type": "object",
            "properties": {
                "Message": {"type": "string"},
                "RspCode": {"type": "string"}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "error": {"type": "string"}
            }
        },
        "services.ReconciliationReport": {
            "type": "object",
            "properties": {
                "campaignId": {"type": "integer"},
                "checkedAt": {"type": "string"},
                "consistent": {"type": "boolean"},
                "currentAmount": {"type": "string"},
                "drift": {"type": "string"},
                "ledgerBalance": {"type": "string"}
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
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "CharityLink Payments API",
	Description:      "Payment confirmation and ledger reconciliation for the donation platform",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
