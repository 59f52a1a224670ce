// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spitools_http_requests_total",
		Help: "HTTP requests served, by handler and status code.",
	}, []string{"handler", "code"})

	caseCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spitools_case_cache_lookups_total",
		Help: "Lookups in the SPI case cache, by result (hit, miss, bypass).",
	}, []string{"result"})

	whoisLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spitools_whois_lookups_total",
		Help: "Queries to the whois gateway, by result.",
	}, []string{"result"})

	wikiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spitools_wiki_request_duration_seconds",
		Help:    "Latency of MediaWiki API requests.",
		Buckets: prometheus.DefBuckets,
	})
)
