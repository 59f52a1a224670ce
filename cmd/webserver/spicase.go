// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const spiPrefix = "Wikipedia:Sockpuppet investigations/"

var (
	ErrArchive      = errors.New("malformed SPI archive")
	ErrCaseNotFound = errors.New("SPI case not found")
)

// SourceDocument is the wikitext of one page that makes up an SPI case,
// either the currently active page or its archive.
type SourceDocument struct {
	PageTitle string
	Wikitext  string
}

// MasterName returns the name of the sock master, which is the last
// component of the page title. A trailing "/Archive" is ignored.
func (d SourceDocument) MasterName() string {
	parts := strings.Split(d.PageTitle, "/")
	if len(parts) > 1 && parts[len(parts)-1] == "Archive" {
		parts = parts[:len(parts)-1]
	}
	return parts[len(parts)-1]
}

// IPInfo is an IP address that was mentioned in an SPI case.
type IPInfo struct {
	Address   IPv4   `json:"ip"`
	Date      string `json:"date"`
	PageTitle string `json:"page"`
}

// Case is what we know about an SPI case, combined from its active page
// and its archive. RevID is the most recent revision of any of the
// pages, so a new edit to either page gives a new RevID.
type Case struct {
	MasterName string   `json:"master"`
	RevID      int64    `json:"revid"`
	IPs        []IPInfo `json:"ips"`
}

// IPSummary lists all the dates on which an address was reported.
type IPSummary struct {
	Address IPv4
	Dates   []string
}

// ParseCase builds a Case from its source documents. All documents
// must belong to the same sock master.
func ParseCase(revID int64, docs ...SourceDocument) (*Case, error) {
	masters := make(map[string]bool, 1)
	for _, doc := range docs {
		masters[doc.MasterName()] = true
	}
	if len(masters) == 0 {
		return nil, fmt.Errorf("%w: no sockmaster name found", ErrArchive)
	}
	if len(masters) > 1 {
		names := make([]string, 0, len(masters))
		for name := range masters {
			names = append(names, name)
		}
		slices.Sort(names)
		return nil, fmt.Errorf("%w: multiple sockmaster names found: %v", ErrArchive, names)
	}

	c := &Case{MasterName: docs[0].MasterName(), RevID: revID}
	for _, doc := range docs {
		for _, day := range splitDays(doc.PageTitle, doc.Wikitext) {
			c.IPs = append(c.IPs, day.findIPs()...)
		}
	}
	return c, nil
}

// SummarizeIPs groups IP mentions by address. The result is sorted
// by address; the dates of each address are sorted too.
func SummarizeIPs(infos []IPInfo) []IPSummary {
	dates := make(map[IPv4][]string, len(infos))
	for _, info := range infos {
		dates[info.Address] = append(dates[info.Address], info.Date)
	}

	result := make([]IPSummary, 0, len(dates))
	for ip, d := range dates {
		slices.Sort(d)
		result = append(result, IPSummary{Address: ip, Dates: d})
	}
	slices.SortFunc(result, func(a, b IPSummary) int {
		if a.Address < b.Address {
			return -1
		} else if a.Address > b.Address {
			return 1
		}
		return slices.Compare(a.Dates, b.Dates)
	})
	return result
}

func caseTitles(master string) (string, string) {
	title := spiPrefix + master
	return title, title + "/Archive"
}

// LoadCase returns the SPI case for a sock master. If the cache
// has the case at its current revision, we use the cached version;
// otherwise, we fetch and parse the case and its archive, and store
// the result in the cache. A nil cache is fine and always misses.
func LoadCase(ctx context.Context, wiki *Wiki, cache *CaseCache, master string, useCache bool) (*Case, error) {
	if master == "" || strings.Contains(master, "/") {
		return nil, fmt.Errorf("%w: bad case name %q", ErrCaseNotFound, master)
	}

	caseTitle, archiveTitle := caseTitles(master)
	revs, err := wiki.LatestRevisions(ctx, caseTitle, archiveTitle)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, master)
	}
	var revID int64
	for _, r := range revs {
		revID = max(revID, r)
	}

	if useCache && cache != nil {
		start := time.Now()
		c, err := cache.Get(ctx, master, revID)
		logger.Printf("CaseCache: Get(%q, %d) took %.3f sec", master, revID, time.Since(start).Seconds())
		if err != nil {
			// Log the problem, but serve the request from the wiki.
			logger.Printf("CaseCache: Get(%q, %d) failed: %v", master, revID, err)
		} else if c != nil {
			caseCacheLookups.WithLabelValues("hit").Inc()
			return c, nil
		}
		caseCacheLookups.WithLabelValues("miss").Inc()
	} else {
		caseCacheLookups.WithLabelValues("bypass").Inc()
	}

	titles := []string{caseTitle, archiveTitle}
	texts := make([]string, len(titles))
	g, subCtx := errgroup.WithContext(ctx)
	for i, title := range titles {
		i, title := i, title
		if _, exists := revs[title]; !exists {
			continue
		}
		g.Go(func() error {
			text, err := wiki.PageText(subCtx, title)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]SourceDocument, 0, len(titles))
	for i, title := range titles {
		if texts[i] != "" {
			docs = append(docs, SourceDocument{title, texts[i]})
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, master)
	}

	c, err := ParseCase(revID, docs...)
	if err != nil {
		return nil, err
	}

	if useCache && cache != nil {
		start := time.Now()
		if err := cache.Put(ctx, c); err != nil {
			logger.Printf("CaseCache: Put(%q, %d) failed: %v", master, revID, err)
		} else {
			logger.Printf("CaseCache: Put(%q, %d) took %.3f sec", master, revID, time.Since(start).Seconds())
		}
	}

	return c, nil
}
