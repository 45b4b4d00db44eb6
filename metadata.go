package lnurlpay

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/lightningnetwork/lnd/lntypes"
)

// MetadataKind is the type of a metadata entry.
type MetadataKind uint8

const (
	KindMetadataUnknown MetadataKind = iota
	KindPlainText
	KindLongDesc
	KindImagePNG
	KindImageJPEG
)

// Metadata entry types defined by LUD-06.
const (
	MetadataPlainText = "text/plain"
	MetadataLongDesc  = "text/long-desc"
	MetadataImagePNG  = "image/png;base64"
	MetadataImageJPEG = "image/jpeg;base64"
)

var metadataKinds = map[string]MetadataKind{
	MetadataPlainText: KindPlainText,
	MetadataLongDesc:  KindLongDesc,
	MetadataImagePNG:  KindImagePNG,
	MetadataImageJPEG: KindImageJPEG,
}

// MetadataEntry is a single [type, content] pair of the metadata array.
type MetadataEntry struct {
	Kind MetadataKind

	// Type is the type string as received.
	Type string

	// Content is the entry content. For unknown types whose content is
	// not a string it holds the raw json.
	Content string
}

// Image decodes the content of an image entry.
func (e MetadataEntry) Image() ([]byte, error) {
	if e.Kind != KindImagePNG && e.Kind != KindImageJPEG {
		return nil, fmt.Errorf("entry of type %q is not an image",
			e.Type)
	}

	return base64.StdEncoding.DecodeString(e.Content)
}

// MetadataDocument is the parsed metadata in wire order.
type MetadataDocument []MetadataEntry

// ParseMetadata parses the raw metadata string of an offer. Entries of
// unknown type are kept so that nothing is lost, but hashing must always use
// the raw string, see CommitmentHash.
func ParseMetadata(raw string) (MetadataDocument, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: not an array", ErrMalformedMetadata)
	}

	doc := make(MetadataDocument, 0, len(entries))
	for i, e := range entries {
		var pair []json.RawMessage
		if err := json.Unmarshal(e, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("%w: entry %d is not a "+
				"[type, content] pair", ErrMalformedMetadata, i)
		}

		typ, ok := jsonString(pair[0])
		if !ok {
			return nil, fmt.Errorf("%w: entry %d has a non-string "+
				"type", ErrMalformedMetadata, i)
		}

		kind := metadataKinds[typ]

		content, ok := jsonString(pair[1])
		if !ok {
			if kind != KindMetadataUnknown {
				return nil, fmt.Errorf("%w: entry %d of type "+
					"%q has non-string content",
					ErrMalformedMetadata, i, typ)
			}
			content = string(pair[1])
		}

		doc = append(doc, MetadataEntry{
			Kind:    kind,
			Type:    typ,
			Content: content,
		})
	}

	return doc, nil
}

// jsonString decodes raw if it is a json string. Unlike json.Unmarshal it
// does not accept null.
func jsonString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}

	return s, true
}

// Displayable returns the entries a wallet knows how to show.
func (d MetadataDocument) Displayable() []MetadataEntry {
	var known []MetadataEntry
	for _, e := range d {
		if e.Kind != KindMetadataUnknown {
			known = append(known, e)
		}
	}

	return known
}

// Description returns the content of the first text/plain entry.
func (d MetadataDocument) Description() string {
	for _, e := range d {
		if e.Kind == KindPlainText {
			return e.Content
		}
	}

	return ""
}

// CommitmentHash returns the hash an invoice must carry as its description
// hash. It is computed over the exact bytes of raw.
func CommitmentHash(raw string) lntypes.Hash {
	return lntypes.Hash(sha256.Sum256([]byte(raw)))
}
