// Package normalize cleans the symbol names emitted by the extractor into
// the dotted fully-qualified form stored in the corpus.
package normalize

import (
	"regexp"
	"strings"

	"github.com/implicit-corpus/collector/errors"
)

var (
	lNotation    = regexp.MustCompile(`L([\w\-$]*/)*[\w\-$]*;`)
	unknownKinds = regexp.MustCompile(`.*Denotation\(([A-Z]*( \| [A-Z]*)*).*`)
)

// Transform rewrites one symbol
type Transform func(string) string

// Transform names, in the order "all" applies them
const (
	RemoveLeadingRoot    = "remove_leading_root"
	RemoveTrailingDot    = "remove_trailing_dot"
	RemoveLNotation      = "remove_L_notation"
	RemoveHashtags       = "remove_hashtags"
	ReplaceUnknownKinds  = "replace_unknown_kinds"
	ExtractFunctionName  = "extract_function_name"
	ExtractParameterList = "extract_parameter_list"
)

var transforms = map[string]Transform{
	RemoveLeadingRoot:    removeLeadingRoot,
	RemoveTrailingDot:    removeTrailingDot,
	RemoveLNotation:      removeLNotation,
	RemoveHashtags:       removeHashtags,
	ReplaceUnknownKinds:  replaceUnknownKinds,
	ExtractFunctionName:  extractFunctionName,
	ExtractParameterList: extractParameterList,
}

// allTransforms is the sequence "all" expands to. The two extractors are
// excluded since they discard half of the symbol.
var allTransforms = []string{
	RemoveLeadingRoot,
	RemoveTrailingDot,
	RemoveLNotation,
	ReplaceUnknownKinds,
	RemoveHashtags,
}

// Fix applies the named transforms to text in order. The single name "all"
// applies every non-extracting transform.
func Fix(names []string, text string) (string, error) {
	if len(names) == 1 && names[0] == "all" {
		names = allTransforms
	}
	for _, name := range names {
		fn, ok := transforms[name]
		if !ok {
			return "", errors.NewInvalidRequestError("unknown transform %q", name)
		}
		text = fn(text)
	}
	return text, nil
}

// CleanFQN is the cleaning shared by every symbol column. Hashtags go
// first, so a trailing "#." keeps its final dot.
func CleanFQN(text string) string {
	return removeLeadingRoot(removeTrailingDot(removeLNotation(removeHashtags(text))))
}

func removeLeadingRoot(text string) string {
	return strings.ReplaceAll(text, "_root_.", "")
}

func removeTrailingDot(text string) string {
	return strings.TrimSuffix(text, ".")
}

// removeLNotation rewrites JVM descriptors (Ljava/lang/Object;) as dotted
// names separated by commas, then drops the separators left before a
// closing paren, a dot or the end of the text
func removeLNotation(text string) string {
	clean := lNotation.ReplaceAllStringFunc(text, func(m string) string {
		m = strings.TrimPrefix(m, "L")
		m = strings.ReplaceAll(m, "/", ".")
		return strings.ReplaceAll(m, ";", ",")
	})
	clean = strings.ReplaceAll(clean, ",)", ")")
	clean = strings.ReplaceAll(clean, ",.", ".")
	return strings.TrimSuffix(clean, ",")
}

// removeHashtags drops a trailing '#' and turns member separators into dots
func removeHashtags(text string) string {
	return strings.ReplaceAll(strings.TrimSuffix(text, "#"), "#", ".")
}

// replaceUnknownKinds reduces an unknown-kind dump to its flags
func replaceUnknownKinds(text string) string {
	if m := unknownKinds.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

func extractFunctionName(text string) string {
	if i := strings.IndexByte(text, '('); i >= 0 {
		return text[:i]
	}
	return text
}

func extractParameterList(text string) string {
	if i := strings.IndexByte(text, '('); i >= 0 {
		return text[i:]
	}
	return ""
}
