package cookies

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// cookieDomain is the site whose cookies are kept from browser exports.
const cookieDomain = "twitch.tv"

const netscapeHeader = "# Netscape HTTP Cookie File"

// browserCookie is one entry of a browser extension's JSON cookie export.
type browserCookie struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

// ParseContent turns the content of a cookie file or URL into cookie header
// values, one per credential.
//
// With jsonMode the content is either a JSON array of header strings or a
// browser export (array of {domain,name,value} objects), which becomes a
// single credential. Otherwise a Netscape cookies.txt is one credential, and
// any other text holds one credential per line ("#" lines are comments).
func ParseContent(data []byte, jsonMode bool) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty cookie source")
	}
	if jsonMode {
		return parseJSON(data)
	}
	if bytes.HasPrefix(data, []byte(netscapeHeader)) {
		return single(parseNetscape(data)), nil
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Count(line, "\t") == 6 {
			// cookies.txt without its header line
			return single(parseNetscape(data)), nil
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func parseJSON(data []byte) ([]string, error) {
	var headers []string
	if err := json.Unmarshal(data, &headers); err == nil {
		return headers, nil
	}
	var export []browserCookie
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse cookie JSON: %w", err)
	}
	pairs := make([]string, 0, len(export))
	for _, c := range export {
		if c.Name != "" && matchesDomain(c.Domain) {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
	}
	return single(strings.Join(pairs, "; ")), nil
}

// parseNetscape builds one header value from the twitch.tv entries of a
// cookies.txt: domain, include-subdomains, path, secure, expiry, name, value.
func parseNetscape(data []byte) string {
	var pairs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != 7 || !matchesDomain(f[0]) {
			continue
		}
		pairs = append(pairs, strings.TrimSpace(f[5])+"="+strings.TrimSpace(f[6]))
	}
	return strings.Join(pairs, "; ")
}

func matchesDomain(domain string) bool {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	return d == cookieDomain || strings.HasSuffix(d, "."+cookieDomain)
}

func single(header string) []string {
	if header == "" {
		return nil
	}
	return []string{header}
}
