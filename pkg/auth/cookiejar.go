package auth

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Cookie-jar file format: one cookie per line, tab-separated fields
//
//	domain  include_subdomains  path  secure  expires  name  value
//
// matching the Netscape jar layout consumed by external download tooling.
const jarHeader = "# Netscape HTTP Cookie File"

// WriteJar writes cookies to path in jar format, creating parent
// directories as needed.
func WriteJar(path string, cookies []Cookie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(jarHeader)
	sb.WriteByte('\n')
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		includeSub := "FALSE"
		if strings.HasPrefix(c.Domain, ".") {
			includeSub = "TRUE"
		}
		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}
		p := c.Path
		if p == "" {
			p = "/"
		}
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain, includeSub, p, secure, c.Expires, c.Name, c.Value)
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("write cookie jar: %w", err)
	}
	return nil
}

// ReadJar parses a jar file written by WriteJar. Comment lines and blank
// lines are skipped; malformed lines are ignored rather than failing the
// whole jar.
func ReadJar(path string) ([]Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie jar: %w", err)
	}
	defer f.Close()

	var cookies []Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		expires, _ := strconv.ParseInt(fields[4], 10, 64)
		cookies = append(cookies, Cookie{
			Domain:  fields[0],
			Path:    fields[2],
			Secure:  fields[3] == "TRUE",
			Expires: expires,
			Name:    fields[5],
			Value:   fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}
	return cookies, nil
}

// JarPath returns the per-region jar file path under dir.
func JarPath(dir, region string) string {
	return filepath.Join(dir, fmt.Sprintf("cookies_%s.txt", region))
}
