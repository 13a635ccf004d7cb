// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json provides integer types that travel as decimal strings, so
// JavaScript clients never lose precision on ids and timestamps.
package json

import "strconv"

const Null = "null"

// Uint16 is a uint16 that is JSON encoded as a decimal string.
type Uint16 uint16

func (u Uint16) MarshalJSON() ([]byte, error) {
	return quote(uint64(u)), nil
}

func (u *Uint16) UnmarshalJSON(b []byte) error {
	v, ok, err := parse(b, 16)
	if ok {
		*u = Uint16(v)
	}
	return err
}

// Uint32 is a uint32 that is JSON encoded as a decimal string.
type Uint32 uint32

func (u Uint32) MarshalJSON() ([]byte, error) {
	return quote(uint64(u)), nil
}

func (u *Uint32) UnmarshalJSON(b []byte) error {
	v, ok, err := parse(b, 32)
	if ok {
		*u = Uint32(v)
	}
	return err
}

// Uint64 is a uint64 that is JSON encoded as a decimal string.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return quote(uint64(u)), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	v, ok, err := parse(b, 64)
	if ok {
		*u = Uint64(v)
	}
	return err
}

func quote(v uint64) []byte {
	b := make([]byte, 0, 22)
	b = append(b, '"')
	b = strconv.AppendUint(b, v, 10)
	return append(b, '"')
}

// parse accepts both quoted and bare numbers. ok is false for null.
func parse(b []byte, bits int) (uint64, bool, error) {
	str := string(b)
	if str == Null {
		return 0, false, nil
	}
	if n := len(str); n >= 2 && str[0] == '"' && str[n-1] == '"' {
		str = str[1 : n-1]
	}
	v, err := strconv.ParseUint(str, 10, bits)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
