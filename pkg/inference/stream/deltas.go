package stream

import (
	"strings"
	"unicode"

	"github.com/go-go-golems/parley/pkg/inference/engine"
)

// DeltaNormalizer forwards text deltas while holding back leading whitespace
// and any trailing run of periods and whitespace, which engine.NormalizeText
// may remove from the final text.
type DeltaNormalizer struct {
	next    engine.TextDeltaFunc
	full    strings.Builder
	emitted int
}

func NewDeltaNormalizer(next engine.TextDeltaFunc) *DeltaNormalizer {
	return &DeltaNormalizer{next: next}
}

func (d *DeltaNormalizer) Write(delta string) {
	d.full.WriteString(delta)
	safe := strings.TrimLeftFunc(d.full.String(), unicode.IsSpace)
	safe = strings.TrimRightFunc(safe, func(r rune) bool { return r == '.' || unicode.IsSpace(r) })
	d.emit(safe)
}

// Flush emits whatever remains of final, the normalized full text.
func (d *DeltaNormalizer) Flush(final string) {
	d.emit(final)
}

func (d *DeltaNormalizer) emit(upTo string) {
	if len(upTo) <= d.emitted {
		return
	}
	d.next(upTo[d.emitted:])
	d.emitted = len(upTo)
}
