package model

// SourcedItem is a raw feed item stamped with the name of the feed that
// reported it, the unit of work flowing from the fetchers into
// normalization.
type SourcedItem struct {
	Source string
	Raw    RawItem
}
