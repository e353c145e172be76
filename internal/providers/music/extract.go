package music

// ExtractAudioURL unwraps the heterogeneous output envelopes generation
// vendors return and resolves a single playable URL. Rules are ordered, first
// match wins: a bare string is returned as-is; an object with a url-like field
// resolves to that field; a non-empty array resolves through its first
// element; an object with an "output" field recurses into it (doubly-wrapped
// envelopes). Anything else, including nil, yields the empty string. The
// function never panics.
func ExtractAudioURL(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case []any:
		if len(v) == 0 {
			return ""
		}
		return ExtractAudioURL(v[0])
	case map[string]any:
		for _, key := range []string{"url", "audio_url", "audioUrl"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
		if inner, ok := v["output"]; ok {
			return ExtractAudioURL(inner)
		}
		return ""
	default:
		return ""
	}
}
