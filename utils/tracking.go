package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// GenerateTrackingPixelURL generates a tracking pixel URL for email opens
func GenerateTrackingPixelURL(baseURL, messageID string, secret []byte) string {
	token := TrackingToken(messageID, secret)
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, token)
}

// GenerateClickTrackURL generates a tracked URL for links
func GenerateClickTrackURL(baseURL, messageID string, secret []byte, originalURL string) string {
	token := TrackingToken(messageID, secret)
	encodedURL := url.QueryEscape(originalURL)
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s", baseURL, messageID, token, encodedURL)
}

// InjectTracking injects open and click tracking into email content
func InjectTracking(htmlContent, baseURL, messageID string, secret []byte) string {
	pixelURL := GenerateTrackingPixelURL(baseURL, messageID, secret)
	trackingPixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, pixelURL)

	modifiedHTML := injectClickTracking(htmlContent, baseURL, messageID, secret)

	return modifiedHTML + trackingPixel
}

func injectClickTracking(html, baseURL, messageID string, secret []byte) string {
	startTag := "<a href=\""
	endTag := "\""
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		// Never double-track or rewrite the unsubscribe link
		if strings.Contains(originalURL, "/track/") || strings.Contains(originalURL, "/unsubscribe/") {
			offset = endIdx
			continue
		}
		trackedURL := GenerateClickTrackURL(baseURL, messageID, secret, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}

// TrackingToken derives a stateless token binding a tracking URL to a message
func TrackingToken(messageID string, secret []byte) string {
	hash := sha256.Sum256(append([]byte(messageID), secret...))
	return base64.URLEncoding.EncodeToString(hash[:])[:20]
}

// ValidTrackingToken verifies a token produced by TrackingToken
func ValidTrackingToken(messageID, token string, secret []byte) bool {
	return token == TrackingToken(messageID, secret)
}
