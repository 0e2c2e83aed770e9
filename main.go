// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Ergostat - Concept2 Performance Monitor CSAFE Tool
//
// A CLI tool for querying, programming and watching rowing ergometer
// performance monitors over the CSAFE protocol.

package main

import (
	"os"

	"github.com/Thermoquad/ergostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
