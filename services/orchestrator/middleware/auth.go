// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// clientKey is the gin context key holding the matched key's label.
const clientKey = "pvagent_client"

// APIKeys maps accepted bearer tokens to a client label used in logs.
type APIKeys map[string]string

// ParseAPIKeys reads a comma-separated "label:key" list. A bare key gets
// the label "default". Empty entries are skipped.
func ParseAPIKeys(s string) APIKeys {
	keys := APIKeys{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, key, found := strings.Cut(part, ":")
		if !found {
			label, key = "default", part
		}
		if key = strings.TrimSpace(key); key != "" {
			keys[key] = strings.TrimSpace(label)
		}
	}
	return keys
}

// ClientLabel returns the label of the key that authenticated the request,
// or "" when authentication is off.
func ClientLabel(c *gin.Context) string {
	return c.GetString(clientKey)
}

// RequireAPIKey rejects requests whose bearer token is not in keys with
// 401 {"error": "unauthorized"}. An empty key set lets every request
// through.
//
// WebSocket clients that cannot set headers may pass the token as the
// access_token query parameter.
func RequireAPIKey(keys APIKeys) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}
		token := extractBearerToken(c)
		if token == "" {
			token = c.Query("access_token")
		}
		label, ok := lookupKey(keys, token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(clientKey, label)
		c.Next()
	}
}

// lookupKey compares token against every key in constant time.
func lookupKey(keys APIKeys, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	var (
		label string
		found bool
	)
	for key, l := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
			label, found = l, true
		}
	}
	return label, found
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
