package helpers

import (
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/k3a/html2text"
)

// BodyText extracts a plain-text rendering of a message body for substring
// matching. It walks the MIME structure and returns the first text/plain
// part. When a message carries only an HTML body, the HTML is converted to
// text so that rules written against visible content still match.
func BodyText(entity *message.Entity) (string, error) {
	var plain, html string

	var walk func(e *message.Entity) error
	walk = func(e *message.Entity) error {
		mediaType, _, _ := e.Header.ContentType()

		if strings.HasPrefix(mediaType, "multipart/") {
			mr := e.MultipartReader()
			if mr == nil {
				return nil
			}
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				if err := walk(part); err != nil {
					return err
				}
				if plain != "" {
					return nil
				}
			}
			return nil
		}

		content, err := io.ReadAll(e.Body)
		if err != nil {
			return err
		}
		switch mediaType {
		case "text/plain", "":
			if plain == "" {
				plain = string(content)
			}
		case "text/html":
			if html == "" {
				html = string(content)
			}
		}
		return nil
	}

	if err := walk(entity); err != nil {
		return "", err
	}
	if plain != "" {
		return plain, nil
	}
	if html != "" {
		return html2text.HTML2Text(html), nil
	}
	return "", nil
}
