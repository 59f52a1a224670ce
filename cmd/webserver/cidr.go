// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// CIDRBlock is a network of IPv4 addresses, given by its base address
// and the number of leading bits shared by all members. Bits of Base
// beyond PrefixLength are always zero.
type CIDRBlock struct {
	Base         IPv4
	PrefixLength int
}

// prefixMask returns a netmask with the top n bits set.
func prefixMask(n int) uint32 {
	if n <= 0 {
		return 0
	}
	return ^uint32(0) << (32 - n)
}

func (b CIDRBlock) Mask() IPv4 {
	return IPv4(prefixMask(b.PrefixLength))
}

// Contains reports whether ip shares the block's top PrefixLength bits.
func (b CIDRBlock) Contains(ip IPv4) bool {
	m := prefixMask(b.PrefixLength)
	return uint32(ip)&m == uint32(b.Base)&m
}

func (b CIDRBlock) String() string {
	return fmt.Sprintf("%s/%d", b.Base, b.PrefixLength)
}

// CoveringBlock returns the smallest CIDR block that contains both a and b.
// The result does not depend on the order of the arguments.
func CoveringBlock(a, b IPv4) CIDRBlock {
	n := bits.LeadingZeros32(uint32(a ^ b))
	return CIDRBlock{
		Base:         IPv4(uint32(a) & prefixMask(n)),
		PrefixLength: n,
	}
}

// CoveringBlockOf is like CoveringBlock, but takes addresses in
// dotted-decimal form. Both addresses are validated before anything
// gets computed.
func CoveringBlockOf(first, last string) (CIDRBlock, error) {
	a, err := ParseIPv4(first)
	if err != nil {
		return CIDRBlock{}, err
	}
	b, err := ParseIPv4(last)
	if err != nil {
		return CIDRBlock{}, err
	}
	return CoveringBlock(a, b), nil
}

// CommonNetwork returns the smallest CIDR block that contains
// every address in ips.
func CommonNetwork(ips []IPv4) (CIDRBlock, error) {
	if len(ips) == 0 {
		return CIDRBlock{}, fmt.Errorf("no addresses given")
	}
	block := CIDRBlock{Base: ips[0], PrefixLength: 32}
	for _, ip := range ips[1:] {
		if c := CoveringBlock(block.Base, ip); c.PrefixLength < block.PrefixLength {
			block = c
		}
	}
	return block, nil
}

// ParseCIDRBlock parses a network in "a.b.c.d/n" notation.
// Host bits beyond the prefix are cleared.
func ParseCIDRBlock(s string) (CIDRBlock, error) {
	addr, length, found := strings.Cut(s, "/")
	if !found {
		return CIDRBlock{}, fmt.Errorf("missing prefix length in %q", s)
	}
	ip, err := ParseIPv4(addr)
	if err != nil {
		return CIDRBlock{}, err
	}
	// Same rules as for octets: plain digits, no sign, no leading zero.
	if !isDigits(length) || (len(length) > 1 && length[0] == '0') {
		return CIDRBlock{}, fmt.Errorf("bad prefix length in %q", s)
	}
	n, err := strconv.Atoi(length)
	if err != nil || n > 32 {
		return CIDRBlock{}, fmt.Errorf("bad prefix length in %q", s)
	}
	return CIDRBlock{IPv4(uint32(ip) & prefixMask(n)), n}, nil
}
