package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Chore Dispute API",
        "description": "Household chore disputes settled by quorum vote.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Disputes", "description": "Dispute lifecycle and voting"},
        {"name": "Authentication", "description": "Development token issuance"}
    ],
    "paths": {
        "/auth/dev-token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Issue a development access token",
                "description": "Only registered outside production.",
                "security": [],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DevTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes": {
            "get": {
                "tags": ["Disputes"],
                "summary": "List disputes of a home the caller belongs to",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated: pending, approved, rejected"},
                    {"name": "homeId", "in": "query", "required": true, "type": "string"},
                    {"name": "choreId", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "homeId missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not a member of the home", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Disputes"],
                "summary": "Open a dispute against a completed chore",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateDisputeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Chore not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Chore not complete or already disputed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes/events": {
            "get": {
                "tags": ["Disputes"],
                "summary": "Stream dispute resolutions",
                "description": "Server-Sent Events named dispute.resolved carrying a DisputeResolvedEvent.",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "homeId", "in": "query", "required": true, "type": "string"},
                    {"name": "access_token", "in": "query", "type": "string", "description": "Bearer token for clients that cannot set headers"}
                ],
                "responses": {
                    "200": {"description": "Event stream", "schema": {"$ref": "#/definitions/DisputeResolvedEvent"}},
                    "403": {"description": "Not a member of the home", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Stream disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes/{id}": {
            "get": {
                "tags": ["Disputes"],
                "summary": "Get a dispute",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not a member of the dispute's home", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes/{id}/status": {
            "get": {
                "tags": ["Disputes"],
                "summary": "Get the vote tally of a dispute",
                "description": "Resolved disputes answer 404 with code DISPUTE_RESOLVED unless includeResolved=true.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "includeResolved", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VoteStatus"}},
                    "403": {"description": "Not a member of the dispute's home", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "NOT_FOUND or DISPUTE_RESOLVED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes/{id}/votes/{voterEmail}": {
            "get": {
                "tags": ["Disputes"],
                "summary": "Get a member's vote",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "voterEmail", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not a member of the dispute's home", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes/{id}/vote": {
            "post": {
                "tags": ["Disputes"],
                "summary": "Cast or change a vote",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CastVoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VoteStatus"}},
                    "403": {"description": "Claimant or non-member", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Dispute no longer pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/disputes/{id}/unvote": {
            "post": {
                "tags": ["Disputes"],
                "summary": "Withdraw a vote",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/UnvoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VoteStatus"}},
                    "409": {"description": "Dispute no longer pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "DevTokenRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {
                "userId": {"type": "string"},
                "email": {"type": "string"},
                "fullName": {"type": "string"}
            }
        },
        "CreateDisputeRequest": {
            "type": "object",
            "required": ["choreId", "reason"],
            "properties": {
                "choreId": {"type": "string"},
                "disputerEmail": {"type": "string", "description": "Must match the token email when set"},
                "reason": {"type": "string", "maxLength": 1000},
                "evidenceUrl": {"type": "string"}
            }
        },
        "CastVoteRequest": {
            "type": "object",
            "required": ["choice"],
            "properties": {
                "voterEmail": {"type": "string", "description": "Must match the token email when set"},
                "choice": {"type": "string", "enum": ["approve", "reject"]}
            }
        },
        "UnvoteRequest": {
            "type": "object",
            "properties": {
                "voterEmail": {"type": "string"}
            }
        },
        "Dispute": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "choreId": {"type": "string"},
                "homeId": {"type": "string"},
                "claimantEmail": {"type": "string"},
                "disputerEmail": {"type": "string"},
                "reason": {"type": "string"},
                "evidenceUrl": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "approved", "rejected"]},
                "resolutionSource": {"type": "string", "enum": ["quorum", "deadline"]},
                "createdAt": {"type": "string", "format": "date-time"},
                "resolvedAt": {"type": "string", "format": "date-time"},
                "effectsAppliedAt": {"type": "string", "format": "date-time"}
            }
        },
        "VoteStatus": {
            "type": "object",
            "properties": {
                "disputeId": {"type": "string"},
                "approveVotes": {"type": "integer"},
                "rejectVotes": {"type": "integer"},
                "totalVotes": {"type": "integer"},
                "totalEligibleVoters": {"type": "integer"},
                "requiredVotes": {"type": "integer"},
                "is24HoursPassed": {"type": "boolean"},
                "deadline": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["pending", "approved", "rejected"]},
                "resolved": {"type": "boolean"}
            }
        },
        "DisputeResolvedEvent": {
            "type": "object",
            "properties": {
                "disputeId": {"type": "string"},
                "choreId": {"type": "string"},
                "homeId": {"type": "string"},
                "claimantEmail": {"type": "string"},
                "outcome": {"type": "string", "enum": ["approved", "rejected"]},
                "source": {"type": "string", "enum": ["quorum", "deadline"]},
                "resolvedAt": {"type": "string", "format": "date-time"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
