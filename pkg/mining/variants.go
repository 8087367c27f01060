package mining

import (
	"strconv"
	"strings"
)

// VariantSeparator joins activity names in a variant identifier.
const VariantSeparator = " -> "

// Variant is the class of cases sharing one ordered activity sequence.
type Variant struct {
	// ID is the display identifier, derived from the sequence itself.
	ID string

	// Activities is the shared activity sequence.
	Activities []string

	// Cases are the member cases in first-seen order.
	Cases []*Case
}

// CaseIDs returns the member case identifiers.
func (v *Variant) CaseIDs() []string {
	ids := make([]string, len(v.Cases))
	for i, c := range v.Cases {
		ids[i] = c.ID
	}
	return ids
}

// VariantID renders an activity sequence as a display identifier.
func VariantID(activities []string) string {
	return strings.Join(activities, VariantSeparator)
}

// sequenceKey encodes a sequence without ambiguity: two keys are equal iff
// the sequences are element-wise equal, whatever the activity names contain.
func sequenceKey(activities []string) string {
	var sb strings.Builder
	for _, a := range activities {
		sb.WriteString(strconv.Itoa(len(a)))
		sb.WriteByte(':')
		sb.WriteString(a)
	}
	return sb.String()
}

// ExtractVariants groups cases by exact activity sequence.
//
// Variants are returned in the order their first member case appears in
// cases. Every case lands in exactly one variant. The returned variants
// point into cases, which must not be modified afterwards.
func ExtractVariants(cases []Case) []Variant {
	index := make(map[string]int)
	var variants []Variant

	for i := range cases {
		c := &cases[i]
		key := sequenceKey(c.Activities)
		pos, ok := index[key]
		if !ok {
			pos = len(variants)
			index[key] = pos
			variants = append(variants, Variant{
				ID:         VariantID(c.Activities),
				Activities: c.Activities,
			})
		}
		variants[pos].Cases = append(variants[pos].Cases, c)
	}

	return variants
}
