package docstore

// token is a whitespace-delimited word with its originating position.
type token struct {
	text      string
	line      int // 1-based
	charStart int // 0-based byte offset
	charEnd   int // 0-based, exclusive
}

// tokenize splits content on whitespace, recording each token's line
// number (1-based, CRLF-tolerant: CR is never counted as a line break)
// and byte range.
func tokenize(content string) []token {
	var tokens []token
	line := 1
	i := 0
	n := len(content)
	for i < n {
		// skip whitespace, tracking newlines
		for i < n && isSpace(content[i]) {
			if content[i] == '\n' {
				line++
			}
			i++
		}
		if i >= n {
			break
		}
		start := i
		startLine := line
		for i < n && !isSpace(content[i]) {
			i++
		}
		tokens = append(tokens, token{
			text:      content[start:i],
			line:      startLine,
			charStart: start,
			charEnd:   i,
		})
	}
	return tokens
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	default:
		return false
	}
}

// Chunk splits document content into a sequence of Chunks per the
// sliding-window algorithm in spec.md §4.1: windows of ChunkSizeWords
// tokens with stride ChunkSizeWords*(1-OverlapPercent), discarding a
// trailing short window unless it is the only one. Documents shorter
// than a single window produce exactly one chunk spanning the whole
// document. The chunker never fails on valid UTF-8 input.
func (s *Store) Chunk(content string, cfg ChunkConfig) []Chunk {
	return ChunkContent(content, cfg)
}

// ChunkContent is the pure chunking function, usable without a Store.
func ChunkContent(content string, cfg ChunkConfig) []Chunk {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return nil
	}

	if len(tokens) <= cfg.ChunkSizeWords {
		return []Chunk{chunkFromTokens(content, tokens, 0)}
	}

	stride := int(float64(cfg.ChunkSizeWords) * (1 - cfg.OverlapPercent))
	if stride < 1 {
		stride = 1
	}

	var windows [][]token
	for start := 0; start < len(tokens); start += stride {
		end := start + cfg.ChunkSizeWords
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, tokens[start:end])
		if end == len(tokens) {
			break
		}
	}

	// Discard a trailing window shorter than MinChunkSizeWords, unless
	// it is the only window.
	if len(windows) > 1 {
		last := windows[len(windows)-1]
		if len(last) < cfg.MinChunkSizeWords {
			windows = windows[:len(windows)-1]
		}
	}

	chunks := make([]Chunk, 0, len(windows))
	for ordinal, w := range windows {
		chunks = append(chunks, chunkFromTokens(content, w, ordinal))
	}
	return chunks
}

// chunkFromTokens slices the chunk's content directly from the original
// document between the first and last token's byte range inclusive, so
// original whitespace and formatting within the window is preserved.
func chunkFromTokens(content string, toks []token, ordinal int) Chunk {
	first, last := toks[0], toks[len(toks)-1]
	return Chunk{
		Ordinal:   ordinal,
		Content:   content[first.charStart:last.charEnd],
		LineStart: first.line,
		LineEnd:   last.line,
		CharStart: first.charStart,
		CharEnd:   last.charEnd,
	}
}
