package match

import "github.com/snapetech/eventarr/internal/sports"

// Method is how a match was made. Cache hits carry the origin method of the
// live match they replay.
const (
	MethodFuzzy   = "FUZZY"
	MethodKeyword = "KEYWORD"
	MethodCache   = "CACHE"
)

// Outcome kinds.
const (
	KindMatched  = "matched"
	KindFiltered = "filtered"
	KindFailed   = "failed"
)

// Failure and filter reasons.
const (
	ReasonNoMatch          = "NO_MATCH"
	ReasonNoEventCardMatch = "NO_EVENT_CARD_MATCH"
	ReasonProviderError    = "PROVIDER_ERROR"
	ReasonPlaceholder      = "PLACEHOLDER"
	ReasonUnknownFormat    = "UNKNOWN_FORMAT"
)

// Outcome is the result of one stream match attempt. Kind selects which
// fields are meaningful: Event/Method/Origin/Confidence for matched,
// Reason (+Detail) for filtered and failed.
type Outcome struct {
	Kind string

	Event      sports.Event
	Method     string
	Origin     string // original method when Method is CACHE
	Confidence float64

	Reason string
	Detail string
}

func Matched(ev sports.Event, method string, confidence float64) Outcome {
	return Outcome{Kind: KindMatched, Event: ev, Method: method, Origin: method, Confidence: confidence}
}

func CacheHit(ev sports.Event, origin string) Outcome {
	return Outcome{Kind: KindMatched, Event: ev, Method: MethodCache, Origin: origin, Confidence: 1.0}
}

func Filtered(reason string) Outcome {
	return Outcome{Kind: KindFiltered, Reason: reason}
}

func Failed(reason, detail string) Outcome {
	return Outcome{Kind: KindFailed, Reason: reason, Detail: detail}
}

func (o Outcome) IsMatched() bool { return o.Kind == KindMatched }
