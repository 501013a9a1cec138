// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"errors"
	"fmt"
)

// ReportSize is the HID report size used by the USB host backend.
const ReportSize = 64

// WrapReports turns line bytes into a sequence of fixed size HID reports.
// Byte 0 of each report carries the payload length, the rest is payload
// followed by zero padding.
func WrapReports(data []byte, reportSize int) ([][]byte, error) {
	if reportSize < 2 || reportSize > 256 {
		return nil, errors.New("report size must be between 2 and 256")
	}
	if len(data) == 0 {
		return nil, errors.New("nothing to wrap")
	}

	var chunks [][]byte
	capacity := reportSize - 1
	for offset := 0; offset < len(data); offset += capacity {
		end := offset + capacity
		if end > len(data) {
			end = len(data)
		}
		report := make([]byte, reportSize)
		report[0] = byte(end - offset)
		copy(report[1:], data[offset:end])
		chunks = append(chunks, report)
	}
	return chunks, nil
}

// UnwrapReport returns the payload carried by one report. Empty reports are
// valid keep-alives and yield no bytes.
func UnwrapReport(report []byte) ([]byte, error) {
	if len(report) == 0 {
		return nil, nil
	}
	length := int(report[0])
	if length > len(report)-1 {
		return nil, fmt.Errorf("report claims %d bytes, carries %d", length, len(report)-1)
	}
	return report[1 : 1+length], nil
}
