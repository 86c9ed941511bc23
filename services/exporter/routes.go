// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/actuator/health", s.handleHealth)
	router.GET("/actuator/prometheus", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/discover", s.handleDiscover)
	api.GET("/monitors", s.handleListMonitors)
	api.GET("/monitors/:name", s.handleGetMonitor)
	api.POST("/monitors/:name/test", s.handleTestMonitor)
	api.GET("/health-scores", s.handleHealthScores)
	api.GET("/health-scores/:queueName", s.handleHealthScoreForQueue)
	api.GET("/license", s.handleLicense)
}
