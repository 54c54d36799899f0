package mapping

import (
	"bufio"
	"log"
	"os"
	"regexp"
	"strings"
)

// RuleSet holds the two layered rule sources used to resolve raw process
// names to application labels. The exact table is always consulted before
// the pattern rules; pattern order is significant and the first match wins.
type RuleSet struct {
	Exact    map[string]string
	Patterns []PatternRule
}

// PatternRule maps any process name the pattern matches (substring search,
// not a full-string match) to an application label.
type PatternRule struct {
	Pattern *regexp.Regexp
	App     string
}

// LoadRuleSet reads the exact-match table from exactPath and the ordered
// pattern table from patternPath. Each file is whitespace-delimited with two
// columns per line: <pattern-or-name> <app-label>. A missing or unreadable
// file is not fatal: a diagnostic is logged and that rule source stays empty.
func LoadRuleSet(exactPath, patternPath string) *RuleSet {
	rs := &RuleSet{Exact: make(map[string]string)}

	for _, pair := range readRuleFile(exactPath) {
		rs.Exact[pair[0]] = pair[1]
	}

	for _, pair := range readRuleFile(patternPath) {
		re, err := regexp.Compile(pair[0])
		if err != nil {
			log.Printf("Skipping pattern rule %q in %s: %v", pair[0], patternPath, err)
			continue
		}
		rs.Patterns = append(rs.Patterns, PatternRule{Pattern: re, App: pair[1]})
	}

	return rs
}

func readRuleFile(path string) [][2]string {
	if path == "" {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		log.Printf("Rule file %s could not be read: %v. Continuing without it", path, err)
		return nil
	}
	defer file.Close()

	var pairs [][2]string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.Printf("Skipping malformed rule line in %s: %q", path, line)
			continue
		}
		pairs = append(pairs, [2]string{fields[0], fields[1]})
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Rule file %s could not be read: %v. Continuing with the rules read so far", path, err)
	}

	return pairs
}
