//go:build ignore

// This program generates the workbook fixtures used in manual testing.
package main

import (
	"fmt"
	"os"

	"github.com/klytics/creditkit/internal/formats/xlsx"
	"github.com/klytics/creditkit/internal/sample"
)

func main() {
	if err := sample.WriteFile("testdata/statements.xlsx"); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating statements.xlsx: %v\n", err)
		os.Exit(1)
	}

	if err := generateMissing(); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating missing.xlsx: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Test fixtures generated successfully.")
}

// generateMissing writes a workbook that only carries the balance sheet.
func generateMissing() error {
	wb := sample.Workbook()
	wb.Sheets = wb.Sheets[:1]
	return xlsx.WriteFile(wb, "testdata/missing.xlsx")
}
