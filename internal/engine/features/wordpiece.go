package features

// maxSeqLen caps the encoded sequence, [CLS] and [SEP] included.
const maxSeqLen = 256

// maxWordRunes is the longest word WordPiece tries to decompose.
const maxWordRunes = 200

// encoded is one text ready for inference, unpadded.
type encoded struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
}

// encode runs basic tokenisation and WordPiece, then frames the ids with
// [CLS] and [SEP] and truncates to maxSeqLen.
func (v *vocab) encode(text string) encoded {
	var pieces []string
	for _, tok := range basicTokens(text) {
		pieces = append(pieces, v.wordpiece(tok)...)
	}
	if len(pieces) > maxSeqLen-2 {
		pieces = pieces[:maxSeqLen-2]
	}

	n := len(pieces) + 2
	e := encoded{
		inputIDs:      make([]int64, n),
		attentionMask: make([]int64, n),
		tokenTypeIDs:  make([]int64, n),
	}
	e.inputIDs[0] = v.clsID
	for i, p := range pieces {
		e.inputIDs[i+1] = v.lookup(p)
	}
	e.inputIDs[n-1] = v.sepID
	for i := range e.attentionMask {
		e.attentionMask[i] = 1
	}
	return e
}

// wordpiece splits a word into the longest matching vocabulary pieces,
// continuation pieces prefixed with "##". Undecomposable words map to [UNK].
func (v *vocab) wordpiece(word string) []string {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []string{"[UNK]"}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		found := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if v.contains(sub) {
				found = sub
				break
			}
			end--
		}
		if found == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}
