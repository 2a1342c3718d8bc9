package ocfl

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/go-test/deep"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
)

const testInventoryJSON = `{
  "digestAlgorithm": "sha256",
  "head": "v2",
  "id": "urn:test:obj",
  "manifest": {
    "98ea6e4f216f2fb4b69fff9b3a44842c38686ca685f3f55dc48c5d3fb1107be4": [
      "v1/content/greet.txt"
    ]
  },
  "type": "https://ocfl.io/1.1/spec/#inventory",
  "versions": {
    "v1": {
      "created": "2023-02-01T10:00:00Z",
      "message": "initial",
      "state": {
        "98ea6e4f216f2fb4b69fff9b3a44842c38686ca685f3f55dc48c5d3fb1107be4": [
          "greet.txt"
        ]
      },
      "user": {
        "address": "mailto:someone@example.org",
        "name": "someone"
      }
    },
    "v2": {
      "created": "2023-02-02T10:00:00+01:00",
      "message": "copy",
      "state": {
        "98ea6e4f216f2fb4b69fff9b3a44842c38686ca685f3f55dc48c5d3fb1107be4": [
          "greet.txt",
          "greet2.txt"
        ]
      },
      "user": {
        "address": "mailto:someone@example.org",
        "name": "someone"
      }
    }
  }
}
`

func TestDecodeInventory(t *testing.T) {
	inventory, err := DecodeInventory(strings.NewReader(testInventoryJSON))
	if err != nil {
		t.Fatalf("DecodeInventory() - %v", err)
	}
	if inventory.Id != "urn:test:obj" {
		t.Errorf("id = %s", inventory.Id)
	}
	if inventory.Head.String() != "v2" {
		t.Errorf("head = %s", inventory.Head)
	}
	if inventory.DigestAlgorithm != checksum.DigestSHA256 {
		t.Errorf("digestAlgorithm = %s", inventory.DigestAlgorithm)
	}
	if len(inventory.Versions) != 2 {
		t.Fatalf("versions = %d", len(inventory.Versions))
	}
	v2 := inventory.Versions["v2"]
	if v2.User == nil || v2.User.Name != "someone" {
		t.Errorf("v2 user = %+v", v2.User)
	}
	if len(v2.State["98ea6e4f216f2fb4b69fff9b3a44842c38686ca685f3f55dc48c5d3fb1107be4"]) != 2 {
		t.Errorf("v2 state = %+v", v2.State)
	}
	if err := inventory.Check(); err != nil {
		t.Errorf("Check() - %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	inventory, err := DecodeInventory(strings.NewReader(testInventoryJSON))
	if err != nil {
		t.Fatalf("DecodeInventory() - %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, inventory); err != nil {
		t.Fatalf("EncodeInventory() - %v", err)
	}
	reparsed, err := DecodeInventory(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reparse - %v\n%s", err, buf.String())
	}
	if diff := deep.Equal(inventory, reparsed); diff != nil {
		t.Errorf("round-trip differs: %v", diff)
	}
	var buf2 bytes.Buffer
	if err := EncodeInventory(&buf2, reparsed); err != nil {
		t.Fatalf("re-encode - %v", err)
	}
	if !bytes.Equal(buf.Bytes(), buf2.Bytes()) {
		t.Error("canonical form is not stable under round-trip")
	}
	if strings.Contains(buf.String(), "\r") {
		t.Error("canonical form contains carriage returns")
	}
	for _, line := range strings.Split(buf.String(), "\n") {
		if line != strings.TrimRight(line, " \t") {
			t.Errorf("trailing whitespace in line %q", line)
		}
	}
}

func TestDecodeStrictness(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown field", `{"id":"a","bogus":1}`},
		{"null id", `{"id":null}`},
		{"uppercase digest", `{"manifest":{"98EA6E4F216F2FB4B69FFF9B3A44842C38686CA685F3F55DC48C5D3FB1107BE4":["v1/content/a"]}}`},
		{"non-hex digest", `{"manifest":{"zz":["v1/content/a"]}}`},
		{"bad head", `{"head":"version1"}`},
		{"numeric id", `{"id":42}`},
		{"bad created", `{"versions":{"v1":{"created":"yesterday"}}}`},
		{"unknown version field", `{"versions":{"v1":{"extra":true}}}`},
		{"duplicate digest", `{"manifest":{"ab":["v1/content/a"],"ab":["v1/content/b"]}}`},
		{"not json", `{`},
	}
	for _, test := range tests {
		if _, err := DecodeInventory(strings.NewReader(test.json)); err == nil {
			t.Errorf("%s: expected decode error", test.name)
		}
	}
}

func TestDecodeErrorsAreCorrupt(t *testing.T) {
	_, err := DecodeInventory(strings.NewReader(`{"id":null}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrCorruptInventory) {
		t.Errorf("decode error should be ErrCorruptInventory, got %v", err)
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	inventory, err := NewInventory("urn:test:sorted", Version1_1, checksum.DigestSHA256, "", 0)
	if err != nil {
		t.Fatalf("NewInventory() - %v", err)
	}
	if err := inventory.NewVersion(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "msg", nil); err != nil {
		t.Fatalf("NewVersion() - %v", err)
	}
	inventory.AddManifestEntry("ffff", "v1/content/z.txt")
	inventory.AddManifestEntry("aaaa", "v1/content/a.txt")
	_ = inventory.AddFileToState("ffff", "z.txt")
	_ = inventory.AddFileToState("aaaa", "a.txt")
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, inventory); err != nil {
		t.Fatalf("EncodeInventory() - %v", err)
	}
	out := buf.String()
	if strings.Index(out, `"aaaa"`) > strings.Index(out, `"ffff"`) {
		t.Errorf("manifest keys not sorted:\n%s", out)
	}
}
