// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Bodies smaller than this are not worth compressing.
const minCompressSize = 512

// AcceptedEncoding picks the best content encoding that the client
// accepts, or "" for an uncompressed response.
func acceptedEncoding(req *http.Request) string {
	br, gz := false, false
	for _, part := range strings.Split(req.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			br = true
		case "gzip":
			gz = true
		}
	}
	if br {
		return "br"
	} else if gz {
		return "gzip"
	}
	return ""
}

// WriteResponse sends body to the client, compressed with brotli or
// gzip if the client accepts it.
func writeResponse(w http.ResponseWriter, req *http.Request, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Add("Vary", "Accept-Encoding")

	encoding := ""
	if len(body) >= minCompressSize {
		encoding = acceptedEncoding(req)
	}

	var out io.WriteCloser
	switch encoding {
	case "br":
		out = brotli.NewWriterLevel(w, 5)
	case "gzip":
		out = gzip.NewWriter(w)
	default:
		w.WriteHeader(status)
		w.Write(body)
		return
	}

	w.Header().Set("Content-Encoding", encoding)
	w.WriteHeader(status)
	if _, err := out.Write(body); err != nil {
		logger.Printf("failed to send response: %v", err)
		return
	}
	if err := out.Close(); err != nil {
		logger.Printf("failed to send response: %v", err)
	}
}
