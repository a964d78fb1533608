package compile

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var outputWritten = regexp.MustCompile(`Output written on .*?\((\d+) pages?`)

// pagesFromLog reads the page count pdflatex prints on success
func pagesFromLog(log string) (int, bool) {
	m := outputWritten.FindStringSubmatch(strings.ReplaceAll(log, "\n", ""))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// countPagesWithPdfinfo uses pdfinfo to count PDF pages
func countPagesWithPdfinfo(pdfPath string) (int, error) {
	cmd := exec.Command("pdfinfo", pdfPath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo command failed: %w", err)
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				if count, err := strconv.Atoi(parts[1]); err == nil {
					return count, nil
				}
			}
		}
	}

	return 0, fmt.Errorf("could not parse page count from pdfinfo output")
}

// firstLaTeXError returns the first "! ..." error line of a LaTeX log
func firstLaTeXError(log string) string {
	for _, line := range strings.Split(log, "\n") {
		if strings.HasPrefix(line, "! ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "! "))
		}
	}
	return ""
}
