// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// IPv4 is an IPv4 address, stored as a 32-bit unsigned integer
// in network byte order (the first octet is the most significant byte).
type IPv4 uint32

// MalformedAddressError reports input that is not a dotted-decimal
// IPv4 address.
type MalformedAddressError struct {
	Input  string
	Reason string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("malformed IPv4 address %q: %s", e.Input, e.Reason)
}

// ParseIPv4 parses an address in "a.b.c.d" form. Each octet must be
// a decimal integer in [0, 255] without a leading zero.
func ParseIPv4(s string) (IPv4, error) {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return 0, &MalformedAddressError{s, fmt.Sprintf("want 4 octets, got %d", len(octets))}
	}

	var ip uint32
	for i, oct := range octets {
		if oct == "" {
			return 0, &MalformedAddressError{s, fmt.Sprintf("octet %d is empty", i+1)}
		}
		for _, c := range oct {
			if c < '0' || c > '9' {
				return 0, &MalformedAddressError{s, fmt.Sprintf("octet %d is not a decimal number", i+1)}
			}
		}
		if len(oct) > 1 && oct[0] == '0' {
			return 0, &MalformedAddressError{s, fmt.Sprintf("octet %d has a leading zero", i+1)}
		}
		n, err := strconv.ParseUint(oct, 10, 8)
		if err != nil {
			return 0, &MalformedAddressError{s, fmt.Sprintf("octet %d is out of range", i+1)}
		}
		ip = ip<<8 | uint32(n)
	}

	return IPv4(ip), nil
}

// Octets returns the four bytes of the address, most significant first.
func (ip IPv4) Octets() [4]byte {
	return [4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}
}

func (ip IPv4) String() string {
	o := ip.Octets()
	return fmt.Sprintf("%d.%d.%d.%d", o[0], o[1], o[2], o[3])
}

func (ip IPv4) MarshalText() ([]byte, error) {
	return []byte(ip.String()), nil
}

func (ip *IPv4) UnmarshalText(text []byte) error {
	parsed, err := ParseIPv4(string(text))
	if err != nil {
		return err
	}
	*ip = parsed
	return nil
}
