// Package options reads the two list files the CLI accepts: the
// excluded-types list and the explicit type-order list. Both are
// line-oriented: one fully-qualified type name per line, blank lines
// and // comments ignored.
package options

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

func readLines(file_path string) ([]string, error) {
	f, err := os.Open(file_path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	scanner := bufio.NewScanner(f)
	line_idx := 0
	for scanner.Scan() {
		line_idx++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.ContainsAny(line, " \t") {
			return nil, fmt.Errorf("Error parsing line %d: type name cannot include space", line_idx)
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// ReadTypeOrder returns the explicit type emission order.
func ReadTypeOrder(file_path string) ([]string, error) {
	return readLines(file_path)
}

// ReadExcludeSet returns the excluded-types set. Duplicate entries are
// absorbed.
func ReadExcludeSet(file_path string) (map[string]bool, error) {
	lines, err := readLines(file_path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(lines))
	for _, name := range lines {
		set[name] = true
	}
	return set, nil
}
