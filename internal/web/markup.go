package web

import (
	"fmt"
	"html"
)

// Assistant replies may carry a small amount of HTML that the frontend
// renders directly: generated images, rate-limit notices, and offline
// fallback replies. All user-derived text is escaped before interpolation.

// imageSuccessMarkup builds the reply shown for a generated image.
func imageSuccessMarkup(prompt, imageURL, filename string) string {
	escapedPrompt := html.EscapeString(prompt)
	escapedURL := html.EscapeString(imageURL)
	escapedName := html.EscapeString(filename)

	return fmt.Sprintf(`<div class="generated-image">
<p>Here's the image I created for: <em>%s</em></p>
<img src="%s" alt="%s" />
<p><a href="%s" download="%s">Download image</a></p>
</div>`, escapedPrompt, escapedURL, escapedPrompt, escapedURL, escapedName)
}

// imageFailureMarkup builds the reply shown when image generation fails.
// It suggests concrete prompts so users can retry with something known
// to work.
func imageFailureMarkup(prompt string) string {
	return fmt.Sprintf(`<div class="image-error">
<p>I couldn't generate an image for: <em>%s</em></p>
<p>Image generation may be temporarily unavailable. Please try again in a few minutes, or try a prompt like:</p>
<ul>
<li>"draw a mountain landscape at sunset"</li>
<li>"create an image of a futuristic city"</li>
<li>"design a minimal logo for a coffee shop"</li>
</ul>
</div>`, html.EscapeString(prompt))
}

// rateLimitMarkup builds the reply shown when every model is throttled.
func rateLimitMarkup(waitSeconds int) string {
	wait := "a moment"
	if waitSeconds > 0 {
		wait = fmt.Sprintf("about %d seconds", waitSeconds)
	}

	return fmt.Sprintf(`<div class="rate-limit-notice">
<p><strong>All models are rate limited right now.</strong></p>
<p>Please wait %s and try again. Your conversation history is saved.</p>
</div>`, wait)
}

// fallbackMarkup wraps an offline fallback reply so the frontend can style
// it differently from a live model answer.
func fallbackMarkup(text string) string {
	return fmt.Sprintf(`<div class="fallback-notice">
<p>%s</p>
</div>`, html.EscapeString(text))
}
