// Package classify decides whether a chat message is asking for an image.
//
// Classification is deliberately cheap: a case-insensitive keyword scan
// plus a handful of phrase patterns. False negatives fall through to the
// text pipeline, which is always a safe answer.
package classify

import (
	"regexp"
	"strings"
)

// imageKeywords are substrings that mark a message as an image request.
var imageKeywords = []string{
	"draw", "paint", "create image", "generate image", "make picture",
	"show me", "picture of", "image of", "photo of", "drawing of",
	"painting of", "visualize", "illustrate", "sketch", "design",
	"logo", "banner", "portrait", "landscape", "still life", "abstract",
	"cartoon", "anime", "realistic", "artistic", "creative", "visual",
	"graphic",
}

// imagePatterns catch phrasings where the verb and the subject are split
// by other words ("create a colorful image", "draw something for me").
var imagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)create.*image`),
	regexp.MustCompile(`(?i)generate.*picture`),
	regexp.MustCompile(`(?i)draw.*for me`),
	regexp.MustCompile(`(?i)show.*image`),
	regexp.MustCompile(`(?i)make.*visual`),
	regexp.MustCompile(`(?i)design.*logo`),
	regexp.MustCompile(`(?i)create.*art`),
}

// IsImageRequest reports whether a message should be routed to the image
// pipeline. The empty message is never an image request.
func IsImageRequest(message string) bool {
	if message == "" {
		return false
	}

	lower := strings.ToLower(message)
	for _, keyword := range imageKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	for _, pattern := range imagePatterns {
		if pattern.MatchString(message) {
			return true
		}
	}

	return false
}
