// Package main is the entry point for the fnscope trace server.
//
// The server hosts the in-process span store behind an HTTP and WebSocket
// query surface so instrumented programs and debugging UIs can inspect
// recorded call trees.
//
// The server provides:
//   - REST API for span and trace queries
//   - WebSocket channel with live span push
//   - Prometheus metrics
//   - Optional line-delimited JSON span log with rotation
//
// Configuration:
//   - Environment variables (FNSCOPE_* prefix)
//   - Optional YAML config file (-config)
//   - CLI flags (override both)
//
// Usage:
//
//	# Defaults
//	./server
//
//	# Explicit port and config file
//	./server -port 7071 -config fnscope.yaml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
