package search

import "github.com/Aman-CERP/amanmcp/internal/store"

// classify splits expansion terms by tokenization arity: terms whose
// tokenization yields exactly one token go to the keyword bucket (fuzzy
// ratio matching); terms with multiple tokens go to the sentence bucket
// (fuzzy partial-ratio substring matching). Embeddings follow their
// string into whichever bucket its term lands in.
func classify(terms []string, embeddings [][]float32) classification {
	var out classification
	for i, term := range terms {
		tokens, _, _ := store.TokenizeSentence(term)
		var emb []float32
		if i < len(embeddings) {
			emb = embeddings[i]
		}
		if len(tokens) <= 1 {
			out.KeywordTerms = append(out.KeywordTerms, term)
			if emb != nil {
				out.KeywordEmbeddings = append(out.KeywordEmbeddings, emb)
			}
		} else {
			out.SentenceTerms = append(out.SentenceTerms, term)
			if emb != nil {
				out.SentenceEmbeddings = append(out.SentenceEmbeddings, emb)
			}
		}
	}
	return out
}

// classifyExpansion produces the two classifications the store query
// needs: one for the original-language bucket (synonyms) and one for
// the target-language bucket (translations, or synonyms again when the
// query is English and has no translations).
func classifyExpansion(exp SearchExpansion) (original, target classification) {
	original = classify(exp.Synonyms, exp.SynonymEmbeddings)
	if exp.IsEnglish || len(exp.Translations) == 0 {
		target = original
		return original, target
	}
	target = classify(exp.Translations, exp.TranslationEmbeddings)
	return original, target
}
