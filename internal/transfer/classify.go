package transfer

import "strings"

// Kind is the retry class of a failure.
type Kind int

const (
	KindTransient Kind = iota
	KindAuth
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// DefaultAuthTerms is the vocabulary yt-dlp uses when the session cookies are
// missing, expired or rejected.
var DefaultAuthTerms = []string{
	"authentication",
	"login",
	"log in",
	"sign in",
	"cookie",
	"expired",
	"password",
	"username",
	"credentials",
	"not a bot",
}

// Classifier maps error text to a retry class by substring match. The match is
// heuristic: there is no structured error code coming out of the extractor.
type Classifier struct {
	AuthTerms  []string
	FatalTerms []string
}

// NewClassifier returns a Classifier using the given vocabularies, falling back
// to DefaultAuthTerms when auth is empty.
func NewClassifier(auth, fatal []string) Classifier {
	if len(auth) == 0 {
		auth = DefaultAuthTerms
	}

	return Classifier{AuthTerms: normalize(auth), FatalTerms: normalize(fatal)}
}

// Classify returns the retry class of errText. Fatal terms win over auth terms.
func (c Classifier) Classify(errText string) Kind {
	text := strings.ToLower(errText)

	for _, term := range c.FatalTerms {
		if strings.Contains(text, term) {
			return KindFatal
		}
	}

	for _, term := range c.AuthTerms {
		if strings.Contains(text, term) {
			return KindAuth
		}
	}

	return KindTransient
}

// Classify uses the default vocabulary.
func Classify(errText string) Kind {
	return NewClassifier(nil, nil).Classify(errText)
}

func normalize(terms []string) []string {
	out := make([]string, 0, len(terms))

	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}

	return out
}
