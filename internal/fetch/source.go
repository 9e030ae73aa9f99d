package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ReadSource loads an HTML document from src: an http(s) URL is fetched with
// c, "-" or "" reads in, anything else is a file path.
func ReadSource(ctx context.Context, c *Client, src string, in io.Reader) (string, error) {
	switch {
	case src == "" || src == "-":
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(trimBOM(b)), nil
	case isHTTPURL(src):
		return c.GetText(ctx, src)
	default:
		b, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", src, err)
		}
		return decodeBody(trimBOM(b), "")
	}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
