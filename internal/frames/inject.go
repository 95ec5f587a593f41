package frames

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// ErrNotHTML is returned by InjectIntoHTML for non-HTML bodies
var ErrNotHTML = errors.New("frames: body is not html")

// HTMLContentType is the content type of an injected page
const HTMLContentType = "text/html; charset=utf-8"

// IsHTML reports whether a response is an HTML document. The declared
// content type wins; without one the body is sniffed.
func IsHTML(body []byte, contentType string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return mediaType == "text/html" || mediaType == "application/xhtml+xml"
		}
	}
	return mimetype.Detect(body).Is("text/html")
}

// InjectIntoHTML inserts script as the first element of <head> so it runs
// before any page script. The body is decoded from its detected charset
// and the result is always UTF-8.
func InjectIntoHTML(body []byte, contentType, script string) ([]byte, error) {
	if !IsHTML(body, contentType) {
		return nil, ErrNotHTML
	}

	label := detectCharset(body, contentType)
	reader, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		reader = bytes.NewReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("frames: failed to parse html: %w", err)
	}

	// the page is re-encoded as utf-8
	doc.Find("meta[charset]").SetAttr("charset", "utf-8")
	doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") {
			s.SetAttr("content", HTMLContentType)
		}
	})

	tag := "<script data-walletkit-bridge>" + escapeScript(script) + "</script>"
	doc.Find("head").First().PrependHtml(tag)

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("frames: failed to render html: %w", err)
	}
	return []byte(out), nil
}

// detectCharset prefers the declared charset, then <meta> prescan, then
// statistical detection
func detectCharset(body []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := params["charset"]; cs != "" {
			return strings.ToLower(cs)
		}
	}

	if _, name, certain := charset.DetermineEncoding(body, contentType); certain {
		return name
	}

	detector := chardet.NewHtmlDetector()
	result, err := detector.DetectBest(body)
	if err != nil || result == nil || result.Confidence < 50 {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func escapeScript(script string) string {
	return strings.ReplaceAll(script, "</", "<\\/")
}
