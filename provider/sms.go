package provider

// GSM-7 segment sizes: a single SMS carries 160 characters, multipart
// segments carry 153 each (the rest is the concatenation header)
const (
	SingleSegmentLimit = 160
	MultiSegmentLimit  = 153
)

// SplitSMSBody splits a body into segment-sized chunks. Bodies that fit a
// single segment come back as one unmarked part; longer bodies are chunked to
// at most 153 characters each, ready for an (i/n) marker.
func SplitSMSBody(body string) []string {
	runes := []rune(body)
	if len(runes) <= SingleSegmentLimit {
		return []string{body}
	}

	var parts []string
	for len(runes) > 0 {
		size := MultiSegmentLimit
		if len(runes) < size {
			size = len(runes)
		}
		parts = append(parts, string(runes[:size]))
		runes = runes[size:]
	}
	return parts
}
