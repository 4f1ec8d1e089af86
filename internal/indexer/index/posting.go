package index

// Posting records one document's occurrences of a term. Positions are
// non-decreasing token ordinals within the field (stacked tokens share one)
// and len(Positions) == Frequency.
type Posting struct {
	DocID     uint32
	Frequency int
	Positions []int
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// Term is the atomic indexed unit: a normalised token scoped to a field.
type Term struct {
	Field string
	Text  string
}

func (t Term) String() string {
	return t.Field + ":" + t.Text
}

// Less orders terms by field, then text.
func (t Term) Less(o Term) bool {
	if t.Field != o.Field {
		return t.Field < o.Field
	}
	return t.Text < o.Text
}

type TermEntry struct {
	Term     Term
	Postings PostingList
}
