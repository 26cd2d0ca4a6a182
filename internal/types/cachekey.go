package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// CacheKey is the canonical identity of a render request for cache
// purposes: the canonicalized URL, the format, and a salt derived from the
// options that affect the produced bytes (spec §3: "Two requests with
// different readiness-affecting options but identical bytes-affecting
// options MUST share a key").
type CacheKey struct {
	CanonicalURL string
	Format       Format
	Salt         string
}

// String returns a stable, filesystem- and object-key-safe representation
// suitable for use as a disk filename or object-store key.
func (k CacheKey) String() string {
	h := sha256.New()
	h.Write([]byte(k.CanonicalURL))
	h.Write([]byte{0})
	h.Write([]byte(k.Format))
	h.Write([]byte{0})
	h.Write([]byte(k.Salt))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalizeURL lowercases the scheme and host, preserves path and query,
// and strips the fragment, per spec §3.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("types: invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("types: url %q must be absolute with scheme and host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// NewCacheKey canonicalizes req.URL and derives the bytes-affecting salt
// for req.Format from req.Options.
func NewCacheKey(req RenderRequest) (CacheKey, error) {
	canonical, err := CanonicalizeURL(req.URL)
	if err != nil {
		return CacheKey{}, err
	}

	return CacheKey{
		CanonicalURL: canonical,
		Format:       req.Format,
		Salt:         bytesAffectingSalt(req.Format, req.Options),
	}, nil
}

// bytesAffectingSalt derives a salt from only the options that influence the
// produced bytes for the given format, so that two requests differing only
// in readiness-affecting options (e.g. a future wait-strategy knob) share a
// cache key.
func bytesAffectingSalt(format Format, opts RenderOptions) string {
	switch format {
	case FormatPNG, FormatJPEG:
		parts := []string{
			strconv.Itoa(opts.ViewportWidth),
			strconv.Itoa(opts.ViewportHeight),
		}
		if format == FormatJPEG {
			parts = append(parts, strconv.Itoa(opts.Quality))
		}
		return strings.Join(parts, "x")
	case FormatPDF:
		return fmt.Sprintf("%gx%g-landscape=%v", opts.PaperWidth, opts.PaperHeight, opts.Landscape)
	default:
		return ""
	}
}
