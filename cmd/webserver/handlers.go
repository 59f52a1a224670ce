// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
)

type Webserver struct {
	wiki  *Wiki
	whois *Whois
	cache *CaseCache
}

const pageHeader = `<html>
<head>
<title>{{.Title}}</title>
<link href='https://tools-static.wmflabs.org/fontcdn/css?family=Roboto+Slab:400,700' rel='stylesheet' type='text/css'/>
<style>
* {
  font-family: 'Roboto Slab', serif;
}
h1 {
  color: #0066ff;
  margin-left: 1em;
  margin-top: 1em;
}
p, ul, form {
  margin-left: 5em;
}
</style>
</head>
<body><h1>{{.Title}}</h1>
`

var indexTemplate = template.Must(template.New("index").Parse(pageHeader + `
<p>Tools for <a href="https://en.wikipedia.org/wiki/Wikipedia:Sockpuppet_investigations">sockpuppet
investigations</a>. Pick an open case to see the IP addresses reported in it.</p>
<ul>
{{range .Cases}}<li><a href="/spi/ip-analysis/{{.}}/">{{.}}</a></li>
{{else}}<li>No open cases.</li>
{{end}}</ul>
</body></html>`))

var ipAnalysisTemplate = template.Must(template.New("ip-analysis").Parse(pageHeader + `
{{if .Summaries}}<form method="get" action="">
<table id="ip-list">
<tr><th>First</th><th>Last</th><th>Address</th><th>Reported</th></tr>
{{range .Summaries}}<tr>
<td><input type="radio" class="ip-radio" name="ip-1" value="{{.Address}}"{{if eq .Address $.First}} checked{{end}}></td>
<td><input type="radio" class="ip-radio" name="ip-2" value="{{.Address}}"{{if eq .Address $.Last}} checked{{end}}></td>
<td>{{.Address}}</td>
<td>{{range $i, $d := .Dates}}{{if $i}}, {{end}}{{$d}}{{end}}</td>
</tr>
{{end}}</table>
<p>Network: <span id="network">{{.Block}}</span> <input type="submit" value="Update"></p>
</form>
{{else}}<p>No IP addresses found in this case.</p>
{{end}}</body></html>`))

func (ws *Webserver) HandleMain(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}

	names, err := OpenCaseNames(req.Context(), ws.wiki)
	if err != nil {
		logger.Printf("cannot fetch open cases: %v", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	data := struct {
		Title string
		Cases []string
	}{"SPI Tools", names}
	if err := indexTemplate.Execute(&buf, data); err != nil {
		logger.Printf("cannot render index: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeResponse(w, req, http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// HandleIPAnalysis shows all IPv4 addresses mentioned in an SPI case,
// together with the smallest network that covers a selected first and
// last address. Without a selection, the lowest and the highest
// address get selected.
func (ws *Webserver) HandleIPAnalysis(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(req.URL.Path, "/spi/ip-analysis/"), "/")
	if name == "" {
		http.NotFound(w, req)
		return
	}

	query := req.URL.Query()
	useCache := query.Get("use_cache") != "false"
	c, err := LoadCase(req.Context(), ws.wiki, ws.cache, name, useCache)
	if errors.Is(err, ErrCaseNotFound) {
		http.NotFound(w, req)
		return
	} else if errors.Is(err, ErrArchive) {
		logger.Printf("cannot parse case %q: %v", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if err != nil {
		logger.Printf("cannot load case %q: %v", name, err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	data := struct {
		Title       string
		Summaries   []IPSummary
		First, Last IPv4
		Block       CIDRBlock
	}{
		Title:     fmt.Sprintf("IP analysis for %s", c.MasterName),
		Summaries: SummarizeIPs(c.IPs),
	}
	if n := len(data.Summaries); n > 0 {
		data.First, data.Last = data.Summaries[0].Address, data.Summaries[n-1].Address
		for _, sel := range []struct {
			param string
			ip    *IPv4
		}{{"ip-1", &data.First}, {"ip-2", &data.Last}} {
			if s := query.Get(sel.param); s != "" {
				ip, err := ParseIPv4(s)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				*sel.ip = ip
			}
		}
		data.Block = CoveringBlock(data.First, data.Last)
	}

	var buf bytes.Buffer
	if err := ipAnalysisTemplate.Execute(&buf, data); err != nil {
		logger.Printf("cannot render ip analysis for %q: %v", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeResponse(w, req, http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// HandleCoveringBlock returns the smallest network that covers
// two addresses, passed as "first" and "last" query parameters.
func (ws *Webserver) HandleCoveringBlock(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	first, last := query.Get("first"), query.Get("last")
	if first == "" || last == "" {
		writeJSONError(w, req, http.StatusBadRequest, "need query parameters first and last")
		return
	}

	block, err := CoveringBlockOf(first, last)
	if err != nil {
		writeJSONError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, req, http.StatusOK, struct {
		Network      IPv4 `json:"network"`
		PrefixLength int  `json:"prefix_length"`
	}{block.Base, block.PrefixLength})
}

// HandleCIDR groups a set of addresses, given as repeated "ip" query
// parameters, into ranges by the network that whois reports for them.
// For each range, we also report the smallest network that covers the
// addresses we were actually given.
func (ws *Webserver) HandleCIDR(w http.ResponseWriter, req *http.Request) {
	params := req.URL.Query()["ip"]
	ips := make([]IPv4, 0, len(params))
	for _, p := range params {
		ip, err := ParseIPv4(p)
		if err != nil {
			writeJSONError(w, req, http.StatusBadRequest, err.Error())
			return
		}
		ips = append(ips, ip)
	}

	ranges, err := GetRanges(req.Context(), ws.whois, ips)
	if err != nil {
		logger.Printf("whois lookup failed: %v", err)
		writeJSONError(w, req, http.StatusBadGateway, "whois lookup failed")
		return
	}

	writeJSON(w, req, http.StatusOK, struct {
		Ranges []Range `json:"ranges"`
	}{ranges})
}

// HandleRobotsTxt sends a constant robots.txt file back to the
// client, allowing web crawlers to access our entire site.  If we
// didn't handle /robots.txt ourselves, Wikimedia's proxy would inject
// a deny-all response and return that to the caller.
func (ws *Webserver) HandleRobotsTxt(w http.ResponseWriter, r *http.Request) {
	// https://wikitech.wikimedia.org/wiki/Help:Toolforge/Web#/robots.txt
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%s", "User-Agent: *\nAllow: /\n")
}

func writeJSON(w http.ResponseWriter, req *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Printf("cannot encode JSON: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeResponse(w, req, status, "application/json", body)
}

func writeJSONError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	writeJSON(w, req, status, struct {
		Error string `json:"error"`
	}{msg})
}
