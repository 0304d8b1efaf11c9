package content

// slideRank orders the slide generation states; states outside the chain rank 0.
var slideRank = map[Status]int{
	StatusDraft:          1,
	StatusSkeleton:       2,
	StatusHTMLReady:      3,
	StatusNarrativeReady: 4,
}

// DeriveStatus maps a slide's canonical content to its lifecycle status.
//
// An explicit status always wins. Otherwise the status follows the richest
// populated field set, but never drops below prior: clearing a field does not
// regress an item. A prior status outside the generation chain (deleted,
// migrated) is kept until a caller overrides it.
func DeriveStatus(content map[string]any, prior, explicit Status) Status {
	if explicit != "" {
		return explicit
	}

	var derived Status
	switch {
	case present(content, FieldContentHTML) && present(content, FieldNarrativeText):
		derived = StatusNarrativeReady
	case present(content, FieldContentHTML):
		derived = StatusHTMLReady
	case present(content, FieldFullText):
		derived = StatusSkeleton
	}

	if prior == "" {
		if derived == "" {
			return StatusDraft
		}
		return derived
	}
	if slideRank[prior] == 0 {
		return prior
	}
	if slideRank[derived] > slideRank[prior] {
		return derived
	}
	return prior
}

// initialStatus is the status assigned to a new item of type t.
func initialStatus(t ContentType, content map[string]any, explicit Status) Status {
	if t == TypeSlide {
		return DeriveStatus(content, "", explicit)
	}
	if explicit != "" {
		return explicit
	}
	return StatusActive
}
