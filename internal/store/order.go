package store

// SortKey is the canonical 8-tuple ordering key:
//
//	(type, file_name, coalesce(page_number,-1), K1, K2,
//	 -coalesce(bbox[4],-1), coalesce(bbox[3],-1), chunk_index)
//
// where, for type in {pdf, image}, K1 = -bbox[2], K2 = bbox[1]
// (the larger bbox[2] sorts first, then left to right); otherwise
// K1 = coalesce(bbox[1],-1), K2 = coalesce(bbox[2],-1).
//
// A Cursor is simply the SortKey of the last row emitted on a page; the
// next page's predicate is strict lexicographic ">" over this tuple.
type SortKey struct {
	Type       string
	FileName   string
	PageNumber float64
	K1         float64
	K2         float64
	NegBBox4   float64
	BBox3      float64
	ChunkIndex int
}

// Cursor is the opaque keyset-pagination cursor: the SortKey of the
// last row of the previous page.
type Cursor = SortKey

// SortKeyOf computes the canonical ordering key for an item.
func SortKeyOf(it *Item) SortKey {
	pageNumber := -1.0
	if it.PageNumber != nil {
		pageNumber = float64(*it.PageNumber)
	}

	var k1, k2 float64
	switch it.Type {
	case ItemTypePDF, ItemTypeImage:
		k1 = -it.BBox.Coalesce(2, -1)
		k2 = it.BBox.Coalesce(1, -1)
	default:
		k1 = it.BBox.Coalesce(1, -1)
		k2 = it.BBox.Coalesce(2, -1)
	}

	return SortKey{
		Type:       string(it.Type),
		FileName:   it.FileName,
		PageNumber: pageNumber,
		K1:         k1,
		K2:         k2,
		NegBBox4:   -it.BBox.Coalesce(4, -1),
		BBox3:      it.BBox.Coalesce(3, -1),
		ChunkIndex: it.ChunkIndex,
	}
}

// Less reports whether a sorts strictly before b under the canonical
// 8-tuple comparator.
func (a SortKey) Less(b SortKey) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.FileName != b.FileName {
		return a.FileName < b.FileName
	}
	if a.PageNumber != b.PageNumber {
		return a.PageNumber < b.PageNumber
	}
	if a.K1 != b.K1 {
		return a.K1 < b.K1
	}
	if a.K2 != b.K2 {
		return a.K2 < b.K2
	}
	if a.NegBBox4 != b.NegBBox4 {
		return a.NegBBox4 < b.NegBBox4
	}
	if a.BBox3 != b.BBox3 {
		return a.BBox3 < b.BBox3
	}
	return a.ChunkIndex < b.ChunkIndex
}

// Greater reports whether a sorts strictly after b; used to apply the
// keyset cursor's strict ">" predicate.
func (a SortKey) Greater(b SortKey) bool {
	return b.Less(a)
}
