// Package http serves the JSON API.
//
// This file implements the builder for the response envelope shared by every
// endpoint: {"status":"success","data":...} or {"status":"error","message":...}.
package http

import (
	"encoding/json"
	"net/http"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

// NewResponse creates a success response with a 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		body:       envelope{Status: statusSuccess},
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.body.Data = data
	return b
}

// Results sets the item count reported next to a list payload.
func (b *ResponseBuilder) Results(n int) *ResponseBuilder {
	b.body.Results = &n
	return b
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.body.Message = msg
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to w.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// OK wraps data in a 200 success envelope.
func OK(data any) *ResponseBuilder {
	return NewResponse().Data(data)
}

// Created wraps data in a 201 success envelope.
func Created(data any) *ResponseBuilder {
	return NewResponse().Status(http.StatusCreated).Data(data)
}

// List wraps a collection and its size.
func List[T any](items []T) *ResponseBuilder {
	if items == nil {
		items = []T{}
	}
	return NewResponse().Results(len(items)).Data(items)
}

// ErrorResponse creates an error envelope.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	b := NewResponse().Status(statusCode).Message(message)
	b.body.Status = statusError
	return b
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
