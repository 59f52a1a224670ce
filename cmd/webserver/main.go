// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

func main() {
	port := flag.Int("port", 0, "port for serving HTTP requests")
	storagekey := flag.String("storage-key", "keys/storage-key", "path to key with storage access credentials")
	workdir := flag.String("workdir", "webserver-workdir", "path to working directory on local disk")
	wikiDomain := flag.String("wiki", "en.wikipedia.org", "domain of the wiki with the SPI cases")
	flag.Parse()

	if *port == 0 {
		*port, _ = strconv.Atoi(os.Getenv("PORT"))
	}

	logger = NewLogger("webserver.log")

	// Without storage credentials, we still serve requests, just slower.
	cache, err := NewCaseCache(*storagekey, *workdir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Printf("no storage key at %s, running without case cache", *storagekey)
		cache = nil
	} else if err != nil {
		log.Fatal(err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	server := &Webserver{
		wiki:  NewWiki(client, *wikiDomain),
		whois: NewWhois(client),
		cache: cache,
	}
	http.HandleFunc("/", instrument("main", server.HandleMain))
	http.HandleFunc("/robots.txt", server.HandleRobotsTxt)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/spi/ip-analysis/", instrument("ip-analysis", server.HandleIPAnalysis))
	http.HandleFunc("/api/cidr/", instrument("cidr", server.HandleCIDR))
	http.HandleFunc("/api/covering-block/", instrument("covering-block", server.HandleCoveringBlock))
	logger.Printf("Listening for HTTP requests on port %d", *port)
	if err := http.ListenAndServe(":"+strconv.Itoa(*port), nil); err != nil {
		log.Fatal(err)
	}
}

// NewLogger creates a logger. If the log file already exists, its
// present content is preserved, and new log entries will get appended
// after the existing ones.
func NewLogger(logname string) *log.Logger {
	logpath := filepath.Join("logs", logname)
	if err := os.MkdirAll("logs", os.ModePerm); err != nil {
		log.Fatal(err)
	}

	logfile, err := os.OpenFile(logpath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal(err)
	}

	return log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Instrument counts the requests to a handler by response status.
func instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, req)
		httpRequests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
	}
}
