// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

type ApiErrorResponse struct {
	Detail string `json:"detail"`
	// Field is the invalid field of a rejected request
	Field string `json:"field,omitempty"`
}

type ErrorWithStatus struct {
	StatusCode int
	Error      ApiErrorResponse
}

func NewErrorWithStatus(code int, details string) *ErrorWithStatus {
	return &ErrorWithStatus{
		StatusCode: code,
		Error: ApiErrorResponse{
			Detail: details,
		},
	}
}

func NewErrorResponseWithStatus(code int, error ApiErrorResponse) *ErrorWithStatus {
	return &ErrorWithStatus{
		StatusCode: code,
		Error:      error,
	}
}
