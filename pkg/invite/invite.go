// Package invite encodes and recognizes the tokens respondents use to open a
// form: generated short codes and creator-chosen vanity slugs.
package invite

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Kind tells a generated code from a vanity slug.
type Kind string

const (
	KindCode   Kind = "code"
	KindVanity Kind = "vanity"
)

const (
	// CodeLength is the length of generated short codes.
	CodeLength = 8
	// CodeAlphabet leaves out characters that are easy to misread (0/O, 1/l/I).
	CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	// SharePathPrefix is the path segment share URLs put before the token.
	SharePathPrefix = "/f/"
	// QueryParam is the query parameter that may carry a token.
	QueryParam = "invite"
)

var (
	codePattern   = regexp.MustCompile(`^[23456789A-HJ-NP-Z]{8}$`)
	vanityPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,47}$`)
	embedded      = regexp.MustCompile(`(?:/f/|[?&]invite=)([A-Za-z0-9-]{3,48})`)
)

// Token is a parsed invite token.
type Token struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

func (t Token) String() string {
	return t.Value
}

// ShareURL builds the link a creator hands out for the token.
func (t Token) ShareURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + SharePathPrefix + url.PathEscape(t.Value)
}

// GenerateShortCode returns a fresh random short code.
func GenerateShortCode() (Token, error) {
	code, err := gonanoid.Generate(CodeAlphabet, CodeLength)
	if err != nil {
		return Token{}, fmt.Errorf("generate short code: %w", err)
	}
	return Token{Kind: KindCode, Value: code}, nil
}

// ParseVanityOrCode accepts a bare code, a vanity slug or a share URL and
// returns the token it names. Codes are upper case; anything else that fits
// the slug pattern is a vanity slug, normalized to lower case.
func ParseVanityOrCode(input string) (Token, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Token{}, fmt.Errorf("empty invite token")
	}

	if strings.Contains(s, "/") || strings.Contains(s, "?") {
		extracted, err := fromURL(s)
		if err != nil {
			return Token{}, err
		}
		s = extracted
	}

	if codePattern.MatchString(s) {
		return Token{Kind: KindCode, Value: s}, nil
	}
	if lower := strings.ToLower(s); vanityPattern.MatchString(lower) {
		return Token{Kind: KindVanity, Value: lower}, nil
	}
	return Token{}, fmt.Errorf("invalid invite token %q", input)
}

// ExtractToken finds the first invite token inside free text such as a
// pasted message containing a share link.
func ExtractToken(text string) (Token, bool) {
	if m := embedded.FindStringSubmatch(text); m != nil {
		if tok, err := ParseVanityOrCode(m[1]); err == nil {
			return tok, true
		}
	}
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:!?\"'()[]<>")
		if tok, err := ParseVanityOrCode(word); err == nil && tok.Kind == KindCode {
			return tok, true
		}
	}
	return Token{}, false
}

func fromURL(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse invite url: %w", err)
	}
	if v := u.Query().Get(QueryParam); v != "" {
		return v, nil
	}
	if i := strings.Index(u.Path, SharePathPrefix); i >= 0 {
		rest := strings.Trim(u.Path[i+len(SharePathPrefix):], "/")
		if rest != "" && !strings.Contains(rest, "/") {
			return rest, nil
		}
	}
	return "", fmt.Errorf("no invite token in %q", s)
}
