// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func TestAcceptedEncoding(t *testing.T) {
	for _, tc := range []struct{ header, want string }{
		{"", ""},
		{"gzip", "gzip"},
		{"gzip, deflate, br", "br"},
		{"br;q=0, gzip", "gzip"},
		{"BR", "br"},
		{"identity", ""},
	} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Accept-Encoding", tc.header)
		if got := acceptedEncoding(req); got != tc.want {
			t.Errorf("Accept-Encoding %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestWriteResponse(t *testing.T) {
	body := strings.Repeat("192.168.1.0/28 ", 100)
	for _, encoding := range []string{"", "gzip", "br"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Accept-Encoding", encoding)
		w := httptest.NewRecorder()
		writeResponse(w, req, http.StatusTeapot, "text/plain", []byte(body))

		res := w.Result()
		defer res.Body.Close()
		if res.StatusCode != http.StatusTeapot {
			t.Errorf("want StatusCode %d, got %d", http.StatusTeapot, res.StatusCode)
		}
		if got := res.Header.Get("Content-Encoding"); got != encoding {
			t.Errorf(`want "Content-Encoding: %s", got "%s"`, encoding, got)
		}
		if got := res.Header.Get("Vary"); got != "Accept-Encoding" {
			t.Errorf(`want "Vary: Accept-Encoding", got "%s"`, got)
		}

		var r io.Reader = res.Body
		switch encoding {
		case "gzip":
			gz, err := gzip.NewReader(res.Body)
			if err != nil {
				t.Fatal(err)
			}
			r = gz
		case "br":
			r = brotli.NewReader(res.Body)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != body {
			t.Errorf("encoding %q: body does not round-trip", encoding)
		}
	}
}

func TestWriteResponse_SmallBody(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "br, gzip")
	w := httptest.NewRecorder()
	writeResponse(w, req, http.StatusOK, "text/plain", []byte("tiny"))
	if got := w.Result().Header.Get("Content-Encoding"); got != "" {
		t.Errorf(`want no Content-Encoding, got "%s"`, got)
	}
	if got := w.Body.String(); got != "tiny" {
		t.Errorf(`got body "%s", want "tiny"`, got)
	}
}
