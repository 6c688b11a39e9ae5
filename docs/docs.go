// Package docs registers the swagger document served under /swagger/.
// Keep it in step with the handler annotations.
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
        "/books": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "List the books matching the query criteria",
                "parameters": [
                    {"type": "string", "description": "exact genre", "name": "genre", "in": "query"},
                    {"type": "string", "description": "one of heb, eng, spa, chi", "name": "language", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Add a book to the catalog",
                "parameters": [
                    {"description": "title, ISBN and genre", "name": "book", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.BookRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/books/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Fetch a book",
                "parameters": [{"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Replace every field of a book",
                "parameters": [
                    {"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true},
                    {"description": "the full book", "name": "book", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.Book"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Remove a book and its rating",
                "parameters": [{"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/ratings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ratings"],
                "summary": "List the ratings, optionally of a single book",
                "parameters": [{"type": "string", "description": "book id", "name": "id", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}}
                }
            }
        },
        "/ratings/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ratings"],
                "summary": "Fetch the rating of a book",
                "parameters": [{"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/ratings/{id}/values": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["ratings"],
                "summary": "Rate a book from 1 to 5",
                "parameters": [
                    {"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true},
                    {"description": "value between 1 and 5", "name": "value", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.RatingValueRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/top": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ratings"],
                "summary": "List the books holding the three best averages",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}}
                }
            }
        },
        "/loans": {
            "get": {
                "produces": ["application/json"],
                "tags": ["loans"],
                "summary": "List the active loans matching the query criteria",
                "parameters": [{"type": "string", "description": "member name", "name": "memberName", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["loans"],
                "summary": "Lend a catalog book to a member",
                "parameters": [
                    {"description": "memberName, ISBN and loanDate", "name": "loan", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.LoanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/loans/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["loans"],
                "summary": "Fetch a loan",
                "parameters": [{"type": "integer", "description": "loan id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["loans"],
                "summary": "Return a loaned book",
                "parameters": [{"type": "integer", "description": "loan id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        }
    },
    "definitions": {
        "main.APIError": {
            "type": "object",
            "properties": {
                "data": {},
                "message": {"type": "string"},
                "requestid": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "main.APIResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "message": {"type": "string"},
                "requestid": {"type": "string"},
                "status": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "main.Book": {
            "type": "object",
            "properties": {
                "ISBN": {"type": "string"},
                "authors": {"type": "string"},
                "genre": {"type": "string"},
                "id": {"type": "string"},
                "language": {"type": "array", "items": {"type": "string"}},
                "publishedDate": {"type": "string"},
                "publisher": {"type": "string"},
                "summary": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "main.BookRequest": {
            "type": "object",
            "properties": {
                "ISBN": {"type": "string"},
                "genre": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "main.RatingValueRequest": {
            "type": "object",
            "properties": {
                "value": {"type": "integer"}
            }
        },
        "main.LoanRequest": {
            "type": "object",
            "properties": {
                "ISBN": {"type": "string"},
                "loanDate": {"type": "string"},
                "memberName": {"type": "string"}
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
	Title:            "Book Club API",
	Description:      "Books catalog with ratings and top ranking, and members loans.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
