/*
Package monitoring provides Prometheus metrics for the query service.

# Overview

Metrics tracks HTTP requests, Goatspeak compilations and executions, tree
building, remote fetches and result deliveries. Every Metrics owns a private
registry, so tests and embedded engines can create as many as they like.

# Usage

	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record query metrics
	timer := monitoring.NewTimer()
	insts, err := goatspeak.Compile(query)
	metrics.RecordCompile(monitoring.Status(err), timer.Elapsed())

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
