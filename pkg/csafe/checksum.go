// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import "fmt"

// Checksum computes the XOR checksum of frame contents
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// isReserved reports whether b collides with one of the frame flags
func isReserved(b byte) bool {
	return b >= ExtendedStartFlag && b <= StuffFlag
}

// stuffBytes escapes reserved values: each is replaced by StuffFlag followed
// by its low two bits.
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if isReserved(b) {
			result = append(result, StuffFlag, b&stuffMask)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// unstuffBytes reverses stuffBytes and returns the XOR of the restored bytes
// alongside them.
func unstuffBytes(data []byte) ([]byte, byte, error) {
	result := make([]byte, 0, len(data))
	var sum byte

	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == StuffFlag {
			if i+1 >= len(data) {
				return nil, 0, fmt.Errorf("%w: incomplete escape sequence at end of data", ErrTruncatedFrame)
			}
			i++
			b = ExtendedStartFlag | (data[i] & stuffMask)
		}
		sum ^= b
		result = append(result, b)
	}

	return result, sum, nil
}

// UnstuffBytes removes byte stuffing from frame contents.
// This is the inverse of the stuffing applied by Encode.
func UnstuffBytes(data []byte) ([]byte, error) {
	result, _, err := unstuffBytes(data)
	return result, err
}
