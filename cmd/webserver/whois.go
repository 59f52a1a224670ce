// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"
)

// Whois queries the whois gateway on Toolforge, which returns
// the registration data for an IP address as JSON.
// https://whois-referral.toolforge.org/
type Whois struct {
	client  *http.Client
	gateway string
}

func NewWhois(client *http.Client) *Whois {
	return &Whois{
		client:  client,
		gateway: "https://whois-referral.toolforge.org/w/gateway.py",
	}
}

// WhoisData is the subset of the gateway response that we use.
type WhoisData struct {
	ASN            string `json:"asn"`
	ASNCIDR        string `json:"asn_cidr"`
	ASNDescription string `json:"asn_description"`
}

// Range is a group of addresses that belong to the same autonomous
// system network. ObservedCIDR is the smallest block that covers the
// addresses we actually saw, and is normally a subset of ASNCIDR.
type Range struct {
	ASNCIDR      string `json:"asn_cidr"`
	ObservedCIDR string `json:"observed_cidr"`
}

func (w *Whois) Lookup(ctx context.Context, ip IPv4) (WhoisData, error) {
	var data WhoisData
	params := url.Values{}
	params.Set("ip", ip.String())
	params.Set("lookup", "true")
	params.Set("format", "json")
	u := w.gateway + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return data, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		whoisLookups.WithLabelValues("error").Inc()
		return data, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		whoisLookups.WithLabelValues("error").Inc()
		return data, fmt.Errorf("failed to fetch %s; StatusCode=%d", u, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		whoisLookups.WithLabelValues("error").Inc()
		return data, fmt.Errorf("cannot decode whois data for %s: %w", ip, err)
	}
	whoisLookups.WithLabelValues("ok").Inc()
	return data, nil
}

// The whois gateway is a shared service; don't hammer it.
const maxParallelWhoisLookups = 4

// GetRanges groups addresses by the autonomous system network they
// belong to, as reported by whois. Ranges are returned in the order
// in which their first address appears in ips.
func GetRanges(ctx context.Context, whois *Whois, ips []IPv4) ([]Range, error) {
	networks := make([]CIDRBlock, len(ips))
	g, subCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelWhoisLookups)
	for i, ip := range ips {
		i, ip := i, ip
		g.Go(func() error {
			data, err := whois.Lookup(subCtx, ip)
			if err != nil {
				return err
			}
			block, err := ParseCIDRBlock(data.ASNCIDR)
			if err != nil {
				return fmt.Errorf("bad asn_cidr for %s: %w", ip, err)
			}
			networks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var order []CIDRBlock
	members := make(map[CIDRBlock][]IPv4, len(ips))
	for i, network := range networks {
		if _, seen := members[network]; !seen {
			order = append(order, network)
		}
		members[network] = append(members[network], ips[i])
	}

	result := make([]Range, 0, len(order))
	for _, network := range order {
		observed, err := CommonNetwork(members[network])
		if err != nil {
			return nil, err
		}
		result = append(result, Range{
			ASNCIDR:      network.String(),
			ObservedCIDR: observed.String(),
		})
	}
	return result, nil
}
