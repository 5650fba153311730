package translator

import (
	"errors"

	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/domain"
)

var (
	errUnrecognisedPayload = errors.New("payload matches no known response shape")
	errNotJSON             = errors.New("payload is not a JSON object")
)

// sniffRule pairs a structural predicate with the parser it selects.
// Rules are evaluated in order and the first match wins.
type sniffRule struct {
	match func(doc gjson.Result) bool
	parse func(doc gjson.Result) (domain.AgnosticResponse, error)
	kind  domain.ResponseKind
}

func has(doc gjson.Result, path string) bool {
	return doc.Get(path).Exists()
}

// sniff returns the first matching rule for raw.
func sniff(rules []sniffRule, raw []byte) (*sniffRule, gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, gjson.Result{}, errNotJSON
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, gjson.Result{}, errNotJSON
	}
	for i := range rules {
		if rules[i].match(doc) {
			return &rules[i], doc, nil
		}
	}
	return nil, doc, errUnrecognisedPayload
}
