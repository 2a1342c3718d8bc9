package ocfl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
)

// The inventory codec is hand-rolled on the json token stream instead of an
// object mapper: manifest and state blocks of large objects can hold hundreds
// of thousands of entries and must stream, and parsing is strict. Unknown
// fields, nulls, and non-lowercase digests are errors, not silent drops.

func isHexLower(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

type inventoryDecoder struct {
	dec *json.Decoder
}

// DecodeInventory parses inventory JSON from r into an Inventory. Structural
// invariants are not checked here; callers run Check separately so that
// validation can report them as coded issues.
func DecodeInventory(r io.Reader) (*Inventory, error) {
	d := &inventoryDecoder{dec: json.NewDecoder(r)}
	inventory, err := d.decode()
	if err != nil {
		return nil, errors.WithMessage(ErrCorruptInventory, err.Error())
	}
	return inventory, nil
}

func (d *inventoryDecoder) decode() (*Inventory, error) {
	inventory := &Inventory{
		Manifest: map[string][]string{},
		Versions: map[string]*Version{},
	}
	if err := d.expectDelim('{'); err != nil {
		return nil, err
	}
	for d.dec.More() {
		key, err := d.stringToken("inventory key")
		if err != nil {
			return nil, err
		}
		switch key {
		case "id":
			if inventory.Id, err = d.stringToken("id"); err != nil {
				return nil, err
			}
		case "type":
			if inventory.Type, err = d.stringToken("type"); err != nil {
				return nil, err
			}
		case "digestAlgorithm":
			alg, err := d.stringToken("digestAlgorithm")
			if err != nil {
				return nil, err
			}
			inventory.DigestAlgorithm = checksum.DigestAlgorithm(alg)
		case "head":
			head, err := d.stringToken("head")
			if err != nil {
				return nil, err
			}
			if inventory.Head, err = ParseVersionNum(head); err != nil {
				return nil, fmt.Errorf("invalid head '%s'", head)
			}
		case "contentDirectory":
			if inventory.ContentDirectory, err = d.stringToken("contentDirectory"); err != nil {
				return nil, err
			}
		case "manifest":
			if inventory.Manifest, err = d.digestMap(); err != nil {
				return nil, err
			}
		case "versions":
			if err := d.versions(inventory); err != nil {
				return nil, err
			}
		case "fixity":
			if err := d.fixity(inventory); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown inventory field '%s'", key)
		}
	}
	if err := d.expectDelim('}'); err != nil {
		return nil, err
	}
	return inventory, nil
}

func (d *inventoryDecoder) token() (json.Token, error) {
	token, err := d.dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json syntax error: %v", err)
	}
	return token, nil
}

func (d *inventoryDecoder) expectDelim(delim rune) error {
	token, err := d.token()
	if err != nil {
		return err
	}
	if d, ok := token.(json.Delim); !ok || rune(d) != delim {
		return fmt.Errorf("expected '%c', got %v", delim, token)
	}
	return nil
}

func (d *inventoryDecoder) stringToken(what string) (string, error) {
	token, err := d.token()
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", fmt.Errorf("%s must not be null", what)
	}
	str, ok := token.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %v", what, token)
	}
	return str, nil
}

// digestMap stream-parses {"digest": ["path", ...], ...} without buffering
// the whole block.
func (d *inventoryDecoder) digestMap() (map[string][]string, error) {
	result := map[string][]string{}
	if err := d.expectDelim('{'); err != nil {
		return nil, err
	}
	for d.dec.More() {
		digest, err := d.stringToken("digest")
		if err != nil {
			return nil, err
		}
		if !isHexLower(digest) {
			return nil, fmt.Errorf("digest '%s' is not lowercase hex", digest)
		}
		if _, ok := result[digest]; ok {
			return nil, fmt.Errorf("duplicate digest '%s'", digest)
		}
		paths, err := d.stringArray("content path")
		if err != nil {
			return nil, err
		}
		result[digest] = paths
	}
	if err := d.expectDelim('}'); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *inventoryDecoder) stringArray(what string) ([]string, error) {
	if err := d.expectDelim('['); err != nil {
		return nil, err
	}
	var result []string
	for d.dec.More() {
		str, err := d.stringToken(what)
		if err != nil {
			return nil, err
		}
		result = append(result, str)
	}
	if err := d.expectDelim(']'); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *inventoryDecoder) versions(inventory *Inventory) error {
	if err := d.expectDelim('{'); err != nil {
		return err
	}
	for d.dec.More() {
		name, err := d.stringToken("version name")
		if err != nil {
			return err
		}
		if _, err := ParseVersionNum(name); err != nil {
			return fmt.Errorf("invalid version name '%s'", name)
		}
		version, err := d.version()
		if err != nil {
			return fmt.Errorf("version %s: %v", name, err)
		}
		inventory.Versions[name] = version
	}
	return d.expectDelim('}')
}

func (d *inventoryDecoder) version() (*Version, error) {
	version := &Version{State: map[string][]string{}}
	if err := d.expectDelim('{'); err != nil {
		return nil, err
	}
	for d.dec.More() {
		key, err := d.stringToken("version key")
		if err != nil {
			return nil, err
		}
		switch key {
		case "created":
			created, err := d.stringToken("created")
			if err != nil {
				return nil, err
			}
			if version.Created, err = time.Parse(time.RFC3339, created); err != nil {
				return nil, fmt.Errorf("cannot parse created time '%s'", created)
			}
		case "message":
			if version.Message, err = d.stringToken("message"); err != nil {
				return nil, err
			}
		case "user":
			if version.User, err = d.user(); err != nil {
				return nil, err
			}
		case "state":
			if version.State, err = d.digestMap(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown version field '%s'", key)
		}
	}
	if err := d.expectDelim('}'); err != nil {
		return nil, err
	}
	return version, nil
}

func (d *inventoryDecoder) user() (*User, error) {
	user := &User{}
	if err := d.expectDelim('{'); err != nil {
		return nil, err
	}
	for d.dec.More() {
		key, err := d.stringToken("user key")
		if err != nil {
			return nil, err
		}
		switch key {
		case "name":
			if user.Name, err = d.stringToken("user name"); err != nil {
				return nil, err
			}
		case "address":
			if user.Address, err = d.stringToken("user address"); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown user field '%s'", key)
		}
	}
	if err := d.expectDelim('}'); err != nil {
		return nil, err
	}
	return user, nil
}

func (d *inventoryDecoder) fixity(inventory *Inventory) error {
	inventory.Fixity = map[checksum.DigestAlgorithm]map[string][]string{}
	if err := d.expectDelim('{'); err != nil {
		return err
	}
	for d.dec.More() {
		alg, err := d.stringToken("fixity algorithm")
		if err != nil {
			return err
		}
		entries, err := d.digestMap()
		if err != nil {
			return err
		}
		inventory.Fixity[checksum.DigestAlgorithm(alg)] = entries
	}
	return d.expectDelim('}')
}

// EncodeInventory writes the canonical byte form: UTF-8, two-space indent,
// lexicographically sorted keys within manifest/state blocks, versions in
// ascending numeric order, LF line endings, trailing newline. The digest of
// these bytes is the inventory digest recorded in the sidecar.
func EncodeInventory(w io.Writer, inventory *Inventory) error {
	e := &inventoryEncoder{w: bufio.NewWriter(w)}
	e.open("{")
	e.field("contentDirectory", inventory.ContentDirectory, inventory.ContentDirectory != "")
	e.field("digestAlgorithm", string(inventory.DigestAlgorithm), true)
	if inventory.Fixity != nil {
		e.key("fixity")
		e.open("{")
		algs := make([]string, 0, len(inventory.Fixity))
		for alg := range inventory.Fixity {
			algs = append(algs, string(alg))
		}
		sort.Strings(algs)
		for _, alg := range algs {
			e.key(alg)
			e.digestMap(inventory.Fixity[checksum.DigestAlgorithm(alg)])
		}
		e.close("}")
	}
	e.field("head", inventory.Head.String(), true)
	e.field("id", inventory.Id, true)
	e.key("manifest")
	e.digestMap(inventory.Manifest)
	e.field("type", inventory.Type, true)
	e.key("versions")
	e.open("{")
	names := make([]string, 0, len(inventory.Versions))
	for name := range inventory.Versions {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		na, _ := ParseVersionNum(names[a])
		nb, _ := ParseVersionNum(names[b])
		return na.Num < nb.Num
	})
	for _, name := range names {
		version := inventory.Versions[name]
		e.key(name)
		e.open("{")
		e.field("created", version.Created.Format(time.RFC3339), true)
		e.field("message", version.Message, version.Message != "")
		e.key("state")
		e.digestMap(version.State)
		if version.User != nil {
			e.key("user")
			e.open("{")
			e.field("address", version.User.Address, version.User.Address != "")
			e.field("name", version.User.Name, true)
			e.close("}")
		}
		e.close("}")
	}
	e.close("}")
	e.close("}")
	if e.err != nil {
		return errors.Wrap(e.err, "cannot encode inventory")
	}
	if _, err := e.w.WriteString("\n"); err != nil {
		return errors.Wrap(err, "cannot encode inventory")
	}
	return errors.Wrap(e.w.Flush(), "cannot encode inventory")
}

type inventoryEncoder struct {
	w      *bufio.Writer
	indent int
	// needComma tracks whether the next entry at the current level must be
	// preceded by a comma
	needComma []bool
	err       error
}

func (e *inventoryEncoder) write(s string) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

func (e *inventoryEncoder) newEntry() {
	if len(e.needComma) == 0 {
		return
	}
	if e.needComma[len(e.needComma)-1] {
		e.write(",")
	}
	e.needComma[len(e.needComma)-1] = true
	e.write("\n")
	e.write(strings.Repeat("  ", e.indent))
}

func (e *inventoryEncoder) open(delim string) {
	e.write(delim)
	e.indent++
	e.needComma = append(e.needComma, false)
}

func (e *inventoryEncoder) close(delim string) {
	hadEntries := e.needComma[len(e.needComma)-1]
	e.indent--
	e.needComma = e.needComma[:len(e.needComma)-1]
	if hadEntries {
		e.write("\n")
		e.write(strings.Repeat("  ", e.indent))
	}
	e.write(delim)
}

func (e *inventoryEncoder) key(name string) {
	e.newEntry()
	e.writeString(name)
	e.write(": ")
}

func (e *inventoryEncoder) field(name, value string, present bool) {
	if !present {
		return
	}
	e.key(name)
	e.writeString(value)
}

func (e *inventoryEncoder) writeString(s string) {
	data, err := json.Marshal(s)
	if err != nil {
		e.err = err
		return
	}
	e.write(string(data))
}

func (e *inventoryEncoder) digestMap(m map[string][]string) {
	e.open("{")
	digests := make([]string, 0, len(m))
	for digest := range m {
		digests = append(digests, digest)
	}
	sort.Strings(digests)
	for _, digest := range digests {
		e.key(digest)
		e.open("[")
		paths := make([]string, len(m[digest]))
		copy(paths, m[digest])
		sort.Strings(paths)
		for _, path := range paths {
			e.newEntry()
			e.writeString(path)
		}
		e.close("]")
	}
	e.close("}")
}
