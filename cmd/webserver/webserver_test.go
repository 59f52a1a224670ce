// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sendRequest(handler http.HandlerFunc, method, path string) (status int, h http.Header, body []byte, err error) {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	handler(w, req)
	res := w.Result()
	defer res.Body.Close()
	body, err = io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, res.Header, body, err
	}
	return res.StatusCode, res.Header, body, nil
}

func TestWebserver_CoveringBlock(t *testing.T) {
	ws := makeTestWebserver()
	for _, tc := range []struct{ query, want string }{
		{"first=192.168.1.5&last=192.168.1.9", `{"network":"192.168.1.0","prefix_length":28}`},
		{"first=192.168.1.9&last=192.168.1.5", `{"network":"192.168.1.0","prefix_length":28}`},
		{"first=10.0.0.1&last=10.0.0.1", `{"network":"10.0.0.1","prefix_length":32}`},
		{"first=0.0.0.0&last=255.255.255.255", `{"network":"0.0.0.0","prefix_length":0}`},
		{"first=172.16.0.0&last=172.16.255.255", `{"network":"172.16.0.0","prefix_length":16}`},
	} {
		status, header, body, err := sendRequest(ws.HandleCoveringBlock, "GET", "/api/covering-block/?"+tc.query)
		if err != nil {
			t.Error(err)
			continue
		}
		if status != http.StatusOK {
			t.Errorf("%s: want StatusCode %d, got %d", tc.query, http.StatusOK, status)
		}
		if string(body) != tc.want {
			t.Errorf("%s: got %s, want %s", tc.query, body, tc.want)
		}
		if got := header.Get("Content-Type"); got != "application/json" {
			t.Errorf(`expected "Content-Type: application/json", got "%s"`, got)
		}
		if got := header.Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf(`expected "Access-Control-Allow-Origin: *", got "%s"`, got)
		}
	}
}

func TestWebserver_CoveringBlockBadRequest(t *testing.T) {
	ws := makeTestWebserver()
	for _, query := range []string{
		"",
		"first=1.2.3.4",
		"first=192.168.1.999&last=192.168.1.1",
		"first=1.2.3.4&last=abc",
	} {
		status, _, body, err := sendRequest(ws.HandleCoveringBlock, "GET", "/api/covering-block/?"+query)
		if err != nil {
			t.Error(err)
			continue
		}
		if status != http.StatusBadRequest {
			t.Errorf("%q: want StatusCode %d, got %d", query, http.StatusBadRequest, status)
		}
		var msg struct{ Error string }
		if err := json.Unmarshal(body, &msg); err != nil || msg.Error == "" {
			t.Errorf("%q: want JSON error, got %s", query, body)
		}
	}
}

func TestWebserver_CIDR(t *testing.T) {
	ws := makeTestWebserver()
	status, _, body, err := sendRequest(ws.HandleCIDR, "GET",
		"/api/cidr/?ip=100.0.0.1&ip=100.0.0.3&ip=100.0.0.4&ip=100.0.0.5")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Errorf("want StatusCode %d, got %d", http.StatusOK, status)
	}
	want := `{"ranges":[{"asn_cidr":"100.0.0.0/24","observed_cidr":"100.0.0.0/29"}]}`
	if string(body) != want {
		t.Errorf("got %s, want %s", body, want)
	}
}

func TestWebserver_CIDRErrors(t *testing.T) {
	ws := makeTestWebserver()
	for _, tc := range []struct {
		query  string
		status int
	}{
		{"ip=100.0.0.1&ip=1.2.3", http.StatusBadRequest},
		{"ip=2001:db8::1", http.StatusBadRequest},
		{"ip=198.51.100.1", http.StatusBadGateway},
	} {
		status, _, _, err := sendRequest(ws.HandleCIDR, "GET", "/api/cidr/?"+tc.query)
		if err != nil {
			t.Error(err)
			continue
		}
		if status != tc.status {
			t.Errorf("%s: want StatusCode %d, got %d", tc.query, tc.status, status)
		}
	}
}

func TestWebserver_IPAnalysis(t *testing.T) {
	ws := makeTestWebserver()
	status, header, body, err := sendRequest(ws.HandleIPAnalysis, "GET", "/spi/ip-analysis/Example/")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("want StatusCode %d, got %d", http.StatusOK, status)
	}
	if got := header.Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf(`expected "Content-Type: text/html; charset=utf-8", got "%s"`, got)
	}

	page := string(body)
	for _, want := range []string{
		"IP analysis for Example",
		`name="ip-1" value="10.0.0.1" checked`,
		`name="ip-2" value="192.168.1.9" checked`,
		"<td>192.168.1.5</td>",
		"02 March 2024, 03 February 2024",
		`<span id="network">0.0.0.0/0</span>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page should contain %q, got %s", want, page)
		}
	}
}

func TestWebserver_IPAnalysisSelection(t *testing.T) {
	ws := makeTestWebserver()
	status, _, body, err := sendRequest(ws.HandleIPAnalysis, "GET",
		"/spi/ip-analysis/Example/?ip-1=192.168.1.9&ip-2=192.168.1.5")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("want StatusCode %d, got %d", http.StatusOK, status)
	}

	page := string(body)
	for _, want := range []string{
		`name="ip-1" value="192.168.1.9" checked`,
		`name="ip-2" value="192.168.1.5" checked`,
		`<span id="network">192.168.1.0/28</span>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page should contain %q, got %s", want, page)
		}
	}
}

func TestWebserver_IPAnalysisErrors(t *testing.T) {
	ws := makeTestWebserver()
	for _, tc := range []struct {
		path   string
		status int
	}{
		{"/spi/ip-analysis/Missing/", http.StatusNotFound},
		{"/spi/ip-analysis/", http.StatusNotFound},
		{"/spi/ip-analysis/Example/?ip-1=1.2.3.999", http.StatusBadRequest},
	} {
		status, _, _, err := sendRequest(ws.HandleIPAnalysis, "GET", tc.path)
		if err != nil {
			t.Error(err)
			continue
		}
		if status != tc.status {
			t.Errorf("%s: want StatusCode %d, got %d", tc.path, tc.status, status)
		}
	}

	broken := &Webserver{wiki: NewWiki(&http.Client{Transport: &FakeWikiSite{Broken: true}}, "en.wikipedia.org")}
	status, _, _, err := sendRequest(broken.HandleIPAnalysis, "GET", "/spi/ip-analysis/Example/")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusBadGateway {
		t.Errorf("want StatusCode %d, got %d", http.StatusBadGateway, status)
	}
}

func TestWebserver_Main(t *testing.T) {
	ws := makeTestWebserver()
	status, _, body, err := sendRequest(ws.HandleMain, "GET", "/")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("want StatusCode %d, got %d", http.StatusOK, status)
	}
	for _, want := range []string{
		`<a href="/spi/ip-analysis/Another/">Another</a>`,
		`<a href="/spi/ip-analysis/Example/">Example</a>`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page should contain %q, got %s", want, body)
		}
	}

	status, _, _, err = sendRequest(ws.HandleMain, "GET", "/no-such-page")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusNotFound {
		t.Errorf("want StatusCode %d, got %d", http.StatusNotFound, status)
	}
}

func TestWebserver_RobotsTxt(t *testing.T) {
	ws := makeTestWebserver()
	status, _, body, err := sendRequest(ws.HandleRobotsTxt, "GET", "/robots.txt")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Errorf("want StatusCode %d, got %d", http.StatusOK, status)
	}
	if want := "User-Agent: *\nAllow: /\n"; string(body) != want {
		t.Errorf("got %q, want %q", body, want)
	}
}

func TestInstrument(t *testing.T) {
	h := instrument("test", func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})
	status, _, _, err := sendRequest(h, "GET", "/")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusNotFound {
		t.Errorf("want StatusCode %d, got %d", http.StatusNotFound, status)
	}
}

func makeTestWebserver() *Webserver {
	client := &http.Client{Transport: &FakeWikiSite{}}
	return &Webserver{
		wiki:  NewWiki(client, "en.wikipedia.org"),
		whois: NewWhois(client),
	}
}
