// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Wikimedia asks API clients to send a descriptive User-Agent.
// https://meta.wikimedia.org/wiki/User-Agent_policy
const userAgent = "SPIToolsWebserver/0.1 (https://spi-tools.toolforge.org/)"

// Wiki is a client for the MediaWiki Action API of one site.
type Wiki struct {
	client *http.Client
	api    string
}

func NewWiki(client *http.Client, domain string) *Wiki {
	return &Wiki{
		client: client,
		api:    fmt.Sprintf("https://%s/w/api.php", domain),
	}
}

type apiResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Continue map[string]string `json:"continue"`
	Query    struct {
		Normalized []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"normalized"`
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				RevID int64 `json:"revid"`
				Slots struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
		CategoryMembers []struct {
			Title string `json:"title"`
		} `json:"categorymembers"`
	} `json:"query"`
}

func (w *Wiki) query(ctx context.Context, params url.Values) (*apiResponse, error) {
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	u := w.api + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := w.client.Do(req)
	wikiRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s; StatusCode=%d", u, resp.StatusCode)
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("cannot decode response from %s: %w", u, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("MediaWiki API error %s: %s", result.Error.Code, result.Error.Info)
	}
	return &result, nil
}

// LatestRevisions returns the id of the most recent revision for each
// of the given pages, keyed by the titles as passed by the caller.
// Pages that do not exist are left out.
func (w *Wiki) LatestRevisions(ctx context.Context, titles ...string) (map[string]int64, error) {
	params := url.Values{}
	params.Set("prop", "revisions")
	params.Set("titles", strings.Join(titles, "|"))
	params.Set("rvprop", "ids")

	resp, err := w.query(ctx, params)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]string, len(titles))
	for _, t := range titles {
		requested[t] = t
	}
	for _, n := range resp.Query.Normalized {
		if t, ok := requested[n.From]; ok {
			requested[n.To] = t
		}
	}

	result := make(map[string]int64, len(titles))
	for _, page := range resp.Query.Pages {
		if page.Missing || len(page.Revisions) == 0 {
			continue
		}
		if t, ok := requested[page.Title]; ok {
			result[t] = page.Revisions[0].RevID
		}
	}
	return result, nil
}

// PageText returns the wikitext of the most recent revision of a page.
// If the page does not exist, the result is empty.
func (w *Wiki) PageText(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("prop", "revisions")
	params.Set("titles", title)
	params.Set("rvprop", "ids|content")
	params.Set("rvslots", "main")

	resp, err := w.query(ctx, params)
	if err != nil {
		return "", err
	}

	for _, page := range resp.Query.Pages {
		if page.Missing || len(page.Revisions) == 0 {
			continue
		}
		return page.Revisions[0].Slots.Main.Content, nil
	}
	return "", nil
}

// CategoryMembers returns the titles of all pages in a category.
func (w *Wiki) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	var result []string
	cont := map[string]string{}
	for {
		params := url.Values{}
		params.Set("list", "categorymembers")
		params.Set("cmtitle", "Category:"+category)
		params.Set("cmlimit", "max")
		for k, v := range cont {
			params.Set(k, v)
		}

		resp, err := w.query(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Query.CategoryMembers {
			result = append(result, m.Title)
		}

		if len(resp.Continue) == 0 {
			return result, nil
		}
		cont = resp.Continue
	}
}

// OpenCaseNames returns the names of the currently active SPI cases.
// The category may list a case more than once; each name is returned
// only once. Cases with "/" in their name are left out because
// the rest of the tool cannot address them.
func OpenCaseNames(ctx context.Context, wiki *Wiki) ([]string, error) {
	members, err := wiki.CategoryMembers(ctx, "Open SPI cases")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(members))
	names := make([]string, 0, len(members))
	for _, m := range members {
		name, found := strings.CutPrefix(m, spiPrefix)
		if !found || name == "" || strings.Contains(name, "/") || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
