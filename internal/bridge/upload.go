package bridge

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
)

// uploadPreviewLimit bounds how much of a text file is echoed into the
// conversation log.
const uploadPreviewLimit = 2000

const uploadWarning = "⚠️ **Upload Warning**: The file content could not be sent to the AI because text commands are unavailable. Please describe the file verbally."

var textExtensions = map[string]bool{
	"json": true, "yaml": true, "yml": true, "md": true, "js": true,
	"ts": true, "py": true, "sh": true, "ps1": true, "xml": true,
	"log": true, "env": true, "txt": true, "tf": true,
}

func isImageFile(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func isTextFile(name, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return ext != "" && textExtensions[strings.ToLower(ext)]
}

// fileLabel is the fence language used when echoing a file: the part after
// the last dot, or the whole name when there is none.
func fileLabel(name string) string {
	i := strings.LastIndex(name, ".")
	label := name[i+1:]
	if label == "" {
		return "text"
	}
	return label
}

// uploadEnvelope is the text turn that hands a file to the model.
func uploadEnvelope(name, content string) string {
	return fmt.Sprintf("[SYSTEM: USER UPLOADED FILE \"%s\"]\n```\n%s\n```", name, content)
}

// uploadSummary is the conversation entry recorded for a text file.
func uploadSummary(name, content string) string {
	runes := []rune(content)
	preview := content
	suffix := ""
	if len(runes) > uploadPreviewLimit {
		preview = string(runes[:uploadPreviewLimit])
		suffix = "\n...(truncated in UI)..."
	}
	return fmt.Sprintf("Uploaded File: **%s**\n```%s\n%s%s\n```", name, fileLabel(name), preview, suffix)
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
