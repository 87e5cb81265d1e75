// Package arxiv contains the read-only client for the public arXiv query API.
package arxiv

import "encoding/xml"

// Feed is the Atom document the query API returns, one entry per paper.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []Entry  `xml:"entry"`
}

// Entry is one paper in the Atom feed.
type Entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	Authors    []Author   `xml:"author"`
	Links      []Link     `xml:"link"`
	Categories []Category `xml:"category"`
}

// Author is a single author element.
type Author struct {
	Name string `xml:"name"`
}

// Link carries the abstract page and PDF URLs.
type Link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Category is an arXiv subject classification.
type Category struct {
	Term string `xml:"term,attr"`
}
