// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package errutil provides helpers for working with oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts the code and context map; extra attrs are
// appended after them. For standard errors, it logs the error string.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		fields = append(fields, "error", oopsErr.Error())
		if code, _ := oopsErr.Code().(string); code != "" {
			fields = append(fields, "code", code)
		}
		if c := oopsErr.Context(); len(c) > 0 {
			fields = append(fields, "context", c)
		}
	} else {
		fields = append(fields, "error", err)
	}
	fields = append(fields, attrs...)
	logger.ErrorContext(ctx, msg, fields...)
}

// Code returns the oops code carried by err, or "" for plain errors.
func Code(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		c, _ := oopsErr.Code().(string)
		return c
	}
	return ""
}
