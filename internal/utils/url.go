package utils

import (
	"fmt"
	"net/url"
	"strings"
)

func looksLikeCID(s string) bool {
	return strings.HasPrefix(s, "Qm") || strings.HasPrefix(s, "bafy")
}

// ExtractCID pulls the content identifier out of a bare CID, an ipfs:// URI or
// a gateway URL such as https://gateway.pinata.cloud/ipfs/<cid>/1.json
func ExtractCID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}

	if rest, ok := strings.CutPrefix(input, "ipfs://"); ok {
		cid, _, _ := strings.Cut(strings.TrimPrefix(rest, "ipfs/"), "/")
		return cid, cid != ""
	}

	if !strings.Contains(input, "://") {
		if looksLikeCID(input) {
			return strings.TrimSuffix(input, "/"), true
		}
		return "", false
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", false
	}

	var parts []string
	for _, p := range strings.Split(parsed.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for i, p := range parts {
		if p == "ipfs" && i+1 < len(parts) {
			return parts[i+1], true
		}
	}

	// subdomain gateways: https://<cid>.ipfs.dweb.link/
	if host, _, ok := strings.Cut(parsed.Host, ".ipfs."); ok && looksLikeCID(host) {
		return host, true
	}

	if len(parts) > 0 && looksLikeCID(parts[len(parts)-1]) {
		return parts[len(parts)-1], true
	}
	return "", false
}

// ToIpfsBaseURI normalizes a metadata location to ipfs://<cid>/. Inputs with no
// recognizable CID are passed through with a trailing slash.
func ToIpfsBaseURI(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "ipfs://") {
		return withTrailingSlash(input)
	}
	if cid, ok := ExtractCID(input); ok {
		return fmt.Sprintf("ipfs://%s/", cid)
	}
	return withTrailingSlash(input)
}

// GatewayURL renders a CID as an HTTP URL on gateway
func GatewayURL(gateway, cid string) string {
	return fmt.Sprintf("%s/ipfs/%s", strings.TrimRight(gateway, "/"), cid)
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
