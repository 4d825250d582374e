// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the idempotent DDL for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is a sample catalog, one JSON product per line.
//
//go:embed seed/products.jsonl
var SeedProducts []byte
