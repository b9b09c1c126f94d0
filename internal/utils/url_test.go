package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func TestExtractCID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOk bool
	}{
		{"bare cid", testCID, testCID, true},
		{"bare v0 cid", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", true},
		{"ipfs uri", "ipfs://" + testCID + "/1.json", testCID, true},
		{"ipfs uri with ipfs segment", "ipfs://ipfs/" + testCID, testCID, true},
		{"pinata gateway", "https://gateway.pinata.cloud/ipfs/" + testCID, testCID, true},
		{"gateway with file", "https://example.mypinata.cloud/ipfs/" + testCID + "/0.json", testCID, true},
		{"subdomain gateway", "https://" + testCID + ".ipfs.dweb.link/", testCID, true},
		{"cid as last segment", "https://cdn.example.com/files/" + testCID, testCID, true},
		{"plain https", "https://example.com/metadata/", "", false},
		{"not a cid", "hello", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCID(tt.input)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToIpfsBaseURI(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ipfs://" + testCID, "ipfs://" + testCID + "/"},
		{"ipfs://" + testCID + "/", "ipfs://" + testCID + "/"},
		{"https://gateway.pinata.cloud/ipfs/" + testCID, "ipfs://" + testCID + "/"},
		{testCID, "ipfs://" + testCID + "/"},
		{"https://example.com/metadata", "https://example.com/metadata/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToIpfsBaseURI(tt.input), tt.input)
	}
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/"+testCID, GatewayURL("https://gateway.pinata.cloud/", testCID))
}
