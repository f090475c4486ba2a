package refindex

import (
	"cmp"
	"maps"
	"slices"

	"github.com/starford/blockref/internal/extract"
)

// snapshot is an immutable aggregation of every document's extraction.
// Writers build a new one and swap it in; readers never see partial state.
type snapshot struct {
	docs     map[string]*extract.Result
	byKey    map[string][]string
	entries  map[AnchorID]*Entry
	resolved map[string][]resolution
	refs     int
	hits     int
}

// resolution is aligned with a document's References slice.
type resolution struct {
	id AnchorID
	ok bool
}

type site struct {
	path string
	line int
}

func emptySnapshot() *snapshot {
	return aggregate(map[string]*extract.Result{})
}

func anchorID(a extract.Anchor) AnchorID {
	key := a.Key
	if a.Kind == extract.KindHeading {
		key = extract.NormalizeHeading(key)
	}
	return AnchorID{DocumentKey: a.DocumentKey, Kind: a.Kind, Key: key}
}

func referenceID(r extract.Reference) AnchorID {
	key := r.TargetAnchorKey
	if r.Kind == extract.KindHeading {
		key = extract.NormalizeHeading(key)
	}
	return AnchorID{DocumentKey: r.ResolvedDocument(), Kind: r.Kind, Key: key}
}

// aggregate joins anchors and references across all documents. Paths are
// visited in sorted order so repeated runs produce identical entries.
func aggregate(docs map[string]*extract.Result) *snapshot {
	s := &snapshot{
		docs:     docs,
		byKey:    make(map[string][]string),
		entries:  make(map[AnchorID]*Entry),
		resolved: make(map[string][]resolution, len(docs)),
	}
	paths := slices.Sorted(maps.Keys(docs))

	for _, p := range paths {
		res := docs[p]
		s.byKey[res.Document.Key] = append(s.byKey[res.Document.Key], p)
		for _, a := range res.Anchors {
			id := anchorID(a)
			e, ok := s.entries[id]
			if !ok {
				e = &Entry{ID: id, Owner: res.Document}
				s.entries[id] = e
			} else if e.Owner.Path != p {
				// Basename collision: the first path owns the bucket.
				continue
			}
			e.Anchors = append(e.Anchors, a)
		}
	}
	for _, e := range s.entries {
		e.Anchor = mostSpecific(e.Anchors)
	}

	seen := make(map[AnchorID]map[site]int)
	for _, p := range paths {
		res := docs[p]
		out := make([]resolution, len(res.References))
		for i, r := range res.References {
			s.refs++
			id := referenceID(r)
			e, ok := s.entries[id]
			if !ok {
				continue
			}
			s.hits++
			out[i] = resolution{id: id, ok: true}

			at := site{path: r.Source.Path, line: r.Line}
			bucket := seen[id]
			if bucket == nil {
				bucket = make(map[site]int)
				seen[id] = bucket
			}
			if j, dup := bucket[at]; dup {
				e.References[j].Embed = e.References[j].Embed || r.Embed
				continue
			}
			bucket[at] = len(e.References)
			e.References = append(e.References, Member{Source: r.Source, Line: r.Line, Embed: r.Embed})
		}
		s.resolved[p] = out
	}

	for _, e := range s.entries {
		slices.SortFunc(e.References, func(a, b Member) int {
			return cmp.Or(cmp.Compare(a.Source.Path, b.Source.Path), cmp.Compare(a.Line, b.Line))
		})
	}
	return s
}

// mostSpecific picks the anchor with the smallest line span, then the
// earliest start.
func mostSpecific(anchors []extract.Anchor) extract.Anchor {
	return slices.MinFunc(anchors, func(a, b extract.Anchor) int {
		return cmp.Or(cmp.Compare(a.Position.Len(), b.Position.Len()), cmp.Compare(a.Position.Start, b.Position.Start))
	})
}
